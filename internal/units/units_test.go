package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit  string
		valid bool
	}{
		{Counts, true},
		{Millivolts, true},
		{Microvolts, true},
		{"volts", false},
		{"", false},
		{"MV", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.valid {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.valid)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "counts, mv, uv" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		unit string
		want string
	}{
		{Counts, "ADC counts"},
		{Millivolts, "mV"},
		{Microvolts, "µV"},
		{"bogus", "ADC counts"},
	}
	for _, tt := range tests {
		if got := Label(tt.unit); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.unit, got, tt.want)
		}
	}
}

func TestConvertReading(t *testing.T) {
	tests := []struct {
		name  string
		raw   uint16
		units string
		want  float64
	}{
		{"zero counts", 0, Counts, 0},
		{"full scale counts", 4095, Counts, 4095},
		{"full scale millivolts", 4095, Millivolts, 3300.0},
		{"half scale millivolts", 2048, Millivolts, 2048 * 3300.0 / 4095},
		{"full scale microvolts", 4095, Microvolts, 3300000.0},
		{"unknown unit passes through", 123, "bogus", 123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertReading(tt.raw, tt.units)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertReading(%d, %q) = %v, want %v", tt.raw, tt.units, got, tt.want)
			}
		})
	}
}
