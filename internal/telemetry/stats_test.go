package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestStreamStats_Empty(t *testing.T) {
	st := NewStreamStats(250)
	sum := st.Snapshot()

	if sum.TotalSamples != 0 || sum.MissingSamples != 0 {
		t.Errorf("empty stats: total=%d missing=%d, want 0/0", sum.TotalSamples, sum.MissingSamples)
	}
	if sum.Elapsed != 0 {
		t.Errorf("Elapsed = %v, want 0", sum.Elapsed)
	}
	if sum.ActualRateHz != 0 {
		t.Errorf("ActualRateHz = %v, want 0", sum.ActualRateHz)
	}
	if !sum.FirstSampleTime.IsZero() || !sum.LastSampleTime.IsZero() {
		t.Error("sample times should be zero before any update")
	}
}

func TestStreamStats_SingleSample(t *testing.T) {
	st := NewStreamStats(250)
	now := time.Unix(1000, 0)
	st.Update(Sample{Counter: 9}, now, 0)

	sum := st.Snapshot()
	if sum.TotalSamples != 1 {
		t.Errorf("TotalSamples = %d, want 1", sum.TotalSamples)
	}
	if sum.LastCounter != 9 {
		t.Errorf("LastCounter = %d, want 9", sum.LastCounter)
	}
	if !sum.FirstSampleTime.Equal(now) || !sum.LastSampleTime.Equal(now) {
		t.Error("first/last sample times should both equal the single observation")
	}
	// One sample spans no time, so the rate is undefined and reported as 0.
	if sum.Elapsed != 0 || sum.ActualRateHz != 0 {
		t.Errorf("Elapsed = %v, ActualRateHz = %v; want 0, 0", sum.Elapsed, sum.ActualRateHz)
	}
}

func TestStreamStats_RateAndElapsed(t *testing.T) {
	st := NewStreamStats(250)
	start := time.Unix(2000, 0)

	// 5 samples observed over 2 seconds.
	for i := 0; i < 5; i++ {
		st.Update(Sample{Counter: uint8(i)}, start.Add(time.Duration(i)*500*time.Millisecond), 0)
	}

	sum := st.Snapshot()
	if sum.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", sum.Elapsed)
	}
	if math.Abs(sum.ActualRateHz-2.5) > 1e-9 {
		t.Errorf("ActualRateHz = %v, want 2.5", sum.ActualRateHz)
	}
	if sum.NominalRateHz != 250 {
		t.Errorf("NominalRateHz = %v, want 250", sum.NominalRateHz)
	}
}

func TestStreamStats_MissingAccumulates(t *testing.T) {
	st := NewStreamStats(250)
	now := time.Now()

	st.Update(Sample{Counter: 0}, now, 0)
	st.Update(Sample{Counter: 3}, now, 2)
	st.Update(Sample{Counter: 4}, now, 0)
	st.Update(Sample{Counter: 10}, now, 5)

	sum := st.Snapshot()
	if sum.TotalSamples != 4 {
		t.Errorf("TotalSamples = %d, want 4", sum.TotalSamples)
	}
	if sum.MissingSamples != 7 {
		t.Errorf("MissingSamples = %d, want 7", sum.MissingSamples)
	}
}

func TestNewStreamStats_DefaultRate(t *testing.T) {
	st := NewStreamStats(0)
	if got := st.Snapshot().NominalRateHz; got != DefaultSampleRate {
		t.Errorf("NominalRateHz = %v, want %v", got, DefaultSampleRate)
	}
}
