package telemetry

import (
	"testing"
	"time"
)

func tsSample(counter uint8) TimestampedSample {
	return TimestampedSample{
		Sample:    Sample{Counter: counter},
		Timestamp: time.Unix(int64(counter), 0),
	}
}

func TestBatcher_FullBatch(t *testing.T) {
	b := NewBatcher(25)

	for i := 0; i < 24; i++ {
		if batch := b.Push(tsSample(uint8(i))); batch != nil {
			t.Fatalf("premature batch after %d pushes", i+1)
		}
	}

	batch := b.Push(tsSample(24))
	if batch == nil {
		t.Fatal("no batch after 25 pushes")
	}
	if len(batch) != 25 {
		t.Fatalf("batch length = %d, want 25", len(batch))
	}
	for i, s := range batch {
		if s.Counter != uint8(i) {
			t.Errorf("batch[%d].Counter = %d, want %d", i, s.Counter, i)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("Pending after full batch = %d, want 0", b.Pending())
	}
	if rem := b.DrainRemainder(); rem != nil {
		t.Errorf("DrainRemainder after exact batch = %v, want nil", rem)
	}
}

func TestBatcher_Remainder(t *testing.T) {
	b := NewBatcher(25)

	var batches [][]TimestampedSample
	for i := 0; i < 30; i++ {
		if batch := b.Push(tsSample(uint8(i))); batch != nil {
			batches = append(batches, batch)
		}
	}

	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if b.Pending() != 5 {
		t.Fatalf("Pending = %d, want 5", b.Pending())
	}

	rem := b.DrainRemainder()
	if len(rem) != 5 {
		t.Fatalf("remainder length = %d, want 5", len(rem))
	}
	for i, s := range rem {
		if want := uint8(25 + i); s.Counter != want {
			t.Errorf("remainder[%d].Counter = %d, want %d", i, s.Counter, want)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("Pending after drain = %d, want 0", b.Pending())
	}
}

func TestBatcher_DrainEmpty(t *testing.T) {
	b := NewBatcher(25)
	if rem := b.DrainRemainder(); rem != nil {
		t.Errorf("DrainRemainder on empty batcher = %v, want nil", rem)
	}
}

func TestNewBatcher_DefaultSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		b := NewBatcher(size)
		if b.Size() != DefaultBatchSize {
			t.Errorf("NewBatcher(%d).Size() = %d, want %d", size, b.Size(), DefaultBatchSize)
		}
	}
}
