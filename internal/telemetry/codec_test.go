package telemetry

import (
	"errors"
	"testing"
)

func TestSampleRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
	}{
		{"zero", Sample{}},
		{"typical", Sample{Counter: 42, Channels: [NumChannels]uint16{1000, 2000, 3000}}},
		{"max counter", Sample{Counter: 255, Channels: [NumChannels]uint16{4095, 0, 4095}}},
		{"max channels", Sample{Counter: 7, Channels: [NumChannels]uint16{0xFFFF, 0xFFFF, 0xFFFF}}},
		{"byte order sensitive", Sample{Counter: 1, Channels: [NumChannels]uint16{0x1234, 0xABCD, 0x00FF}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeSample(tt.sample)
			if len(encoded) != RecordSize {
				t.Fatalf("encoded length = %d, want %d", len(encoded), RecordSize)
			}

			decoded, err := DecodeSample(encoded)
			if err != nil {
				t.Fatalf("DecodeSample failed: %v", err)
			}
			if decoded != tt.sample {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded, tt.sample)
			}
		})
	}
}

func TestDecodeSample_BigEndian(t *testing.T) {
	record := []byte{42, 0x12, 0x34, 0xAB, 0xCD, 0x00, 0xFF}

	s, err := DecodeSample(record)
	if err != nil {
		t.Fatalf("DecodeSample failed: %v", err)
	}

	if s.Counter != 42 {
		t.Errorf("Counter = %d, want 42", s.Counter)
	}
	want := [NumChannels]uint16{0x1234, 0xABCD, 0x00FF}
	if s.Channels != want {
		t.Errorf("Channels = %v, want %v", s.Channels, want)
	}
}

func TestDecodeSample_InvalidLength(t *testing.T) {
	for _, n := range []int{0, 1, 6, 8, 14} {
		_, err := DecodeSample(make([]byte, n))
		if err == nil {
			t.Errorf("DecodeSample(%d bytes): expected error, got nil", n)
			continue
		}
		if !errors.Is(err, ErrInvalidRecordLength) {
			t.Errorf("DecodeSample(%d bytes): error %v does not wrap ErrInvalidRecordLength", n, err)
		}
	}
}

func TestAppendSample_Extends(t *testing.T) {
	buf := EncodeSample(Sample{Counter: 1})
	buf = AppendSample(buf, Sample{Counter: 2})

	if len(buf) != 2*RecordSize {
		t.Fatalf("buffer length = %d, want %d", len(buf), 2*RecordSize)
	}
	if buf[0] != 1 || buf[RecordSize] != 2 {
		t.Errorf("records out of order: counters %d, %d", buf[0], buf[RecordSize])
	}
}
