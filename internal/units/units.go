// Package units converts raw sample values and times into display units.
package units

import (
	"slices"
	"strings"
)

// Display units accepted by the HTTP API.
const (
	Counts     = "counts"
	Millivolts = "mv"
	Microvolts = "uv"
)

// ADC characteristics of the acquisition board. Raw channel values are
// 12-bit readings scaled by the firmware to span the full range, with a
// 3.3V reference at 12 dB attenuation.
const (
	ADCBits        = 12
	ADCMaxCount    = 4095
	VRefMillivolts = 3300.0
)

// ValidUnits lists every accepted display unit.
var ValidUnits = []string{Counts, Millivolts, Microvolts}

// IsValid reports whether unit names a supported display unit.
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// GetValidUnitsString renders the accepted values for error messages.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Label returns an axis label for a display unit.
func Label(unit string) string {
	switch unit {
	case Millivolts:
		return "mV"
	case Microvolts:
		return "µV"
	default:
		return "ADC counts"
	}
}

// ConvertReading converts a raw ADC reading to the target units. Storage
// keeps raw counts; conversion happens at display time. Unknown units
// pass the reading through unchanged.
func ConvertReading(raw uint16, targetUnits string) float64 {
	switch targetUnits {
	case Millivolts:
		return float64(raw) * VRefMillivolts / ADCMaxCount
	case Microvolts:
		return float64(raw) * VRefMillivolts * 1000 / ADCMaxCount
	default:
		return float64(raw)
	}
}
