package telemetry

import (
	"sync"
	"time"
)

// StreamStats accumulates session-lifetime counters with thread-safe
// operations so the HTTP API can snapshot while ingest is running.
type StreamStats struct {
	mu          sync.Mutex
	total       uint64
	missing     uint64
	lastCounter uint8
	firstSample time.Time
	lastSample  time.Time
	nominalRate float64
}

// NewStreamStats creates a StreamStats for a stream with the given
// nominal acquisition rate.
func NewStreamStats(nominalRateHz float64) *StreamStats {
	if nominalRateHz <= 0 {
		nominalRateHz = DefaultSampleRate
	}
	return &StreamStats{nominalRate: nominalRateHz}
}

// Update records one decoded sample observed at the given time together
// with the gap the counter check reported for it.
func (st *StreamStats) Update(s Sample, observedAt time.Time, missed uint32) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.total++
	st.missing += uint64(missed)
	st.lastCounter = s.Counter
	if st.firstSample.IsZero() {
		st.firstSample = observedAt
	}
	st.lastSample = observedAt
}

// Summary is a point-in-time view of the stream counters.
type Summary struct {
	TotalSamples    uint64        `json:"total_samples"`
	MissingSamples  uint64        `json:"missing_samples"`
	LastCounter     uint8         `json:"last_counter"`
	FirstSampleTime time.Time     `json:"first_sample_time"`
	LastSampleTime  time.Time     `json:"last_sample_time"`
	Elapsed         time.Duration `json:"elapsed"`
	NominalRateHz   float64       `json:"nominal_rate_hz"`
	ActualRateHz    float64       `json:"actual_rate_hz"`
}

// Snapshot returns the current counters. Elapsed is the span between the
// first and last observed samples (zero until two samples arrive), and
// the actual rate is total over elapsed (zero while elapsed is zero).
func (st *StreamStats) Snapshot() Summary {
	st.mu.Lock()
	defer st.mu.Unlock()

	sum := Summary{
		TotalSamples:    st.total,
		MissingSamples:  st.missing,
		LastCounter:     st.lastCounter,
		FirstSampleTime: st.firstSample,
		LastSampleTime:  st.lastSample,
		NominalRateHz:   st.nominalRate,
	}
	if !st.firstSample.IsZero() {
		sum.Elapsed = st.lastSample.Sub(st.firstSample)
	}
	if sum.Elapsed > 0 {
		sum.ActualRateHz = float64(st.total) / sum.Elapsed.Seconds()
	}
	return sum
}
