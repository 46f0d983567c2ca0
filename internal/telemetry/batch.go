package telemetry

// Batcher groups timestamped samples into fixed-size batches for
// persistence. Samples are timestamped before batching, so a batch that
// spans several deliveries keeps each delivery's own arrival anchor.
type Batcher struct {
	size    int
	pending []TimestampedSample
}

// NewBatcher creates a Batcher emitting batches of the given size.
// Sizes below 1 fall back to DefaultBatchSize.
func NewBatcher(size int) *Batcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Batcher{
		size:    size,
		pending: make([]TimestampedSample, 0, size),
	}
}

// Push adds one sample in arrival order. When the pending group reaches
// the batch size it is returned and a fresh group starts; otherwise Push
// returns nil.
func (b *Batcher) Push(s TimestampedSample) []TimestampedSample {
	b.pending = append(b.pending, s)
	if len(b.pending) < b.size {
		return nil
	}
	batch := b.pending
	b.pending = make([]TimestampedSample, 0, b.size)
	return batch
}

// DrainRemainder returns the partial batch accumulated since the last
// full one, or nil if nothing is pending. The batcher is left empty.
func (b *Batcher) DrainRemainder() []TimestampedSample {
	if len(b.pending) == 0 {
		return nil
	}
	rem := b.pending
	b.pending = make([]TimestampedSample, 0, b.size)
	return rem
}

// Pending reports how many samples are waiting for a full batch.
func (b *Batcher) Pending() int {
	return len(b.pending)
}

// Size returns the configured batch size.
func (b *Batcher) Size() int {
	return b.size
}
