// Package telemetry implements the sample pipeline for NPG-Lite
// acquisition boards: reassembly of fixed-size records from arbitrary
// transport fragments, loss detection via the rolling frame counter,
// arrival-anchored timestamp reconstruction, and durable batch emission.
package telemetry

import "time"

// Wire format constants shared with the acquisition firmware.
// The board emits fixed 7-byte records and concatenates whole records
// into every transport payload; payload boundaries carry no meaning.
const (
	RecordSize  = 7 // 1 counter byte + 3 × 2-byte channel readings
	NumChannels = 3 // ADS channels sampled per record

	DefaultBatchSize  = 25    // records per persisted batch
	DefaultSampleRate = 250.0 // board acquisition rate in Hz
)

// SampleInterval returns the nominal spacing between consecutive samples
// at the given acquisition rate. At the default 250 Hz this is exactly 4ms.
func SampleInterval(rateHz float64) time.Duration {
	if rateHz <= 0 {
		rateHz = DefaultSampleRate
	}
	return time.Duration(float64(time.Second) / rateHz)
}

// Sample is one decoded acquisition record.
type Sample struct {
	Counter  uint8                // rolling frame counter, wraps 255 → 0
	Channels [NumChannels]uint16 // raw ADC readings, channel 0 first
}

// TimestampedSample pairs a Sample with its reconstructed acquisition
// time. Values are produced by ReconstructTimestamps; the transport only
// stamps whole deliveries, never individual samples.
type TimestampedSample struct {
	Sample
	Timestamp time.Time
}
