package telemetry

// ReassemblyBuffer accumulates raw transport fragments and carves them
// into whole records. The transport may split the stream at any byte
// position, so a fragment can end mid-record; the partial tail stays
// buffered until later fragments complete it.
//
// The staging buffer is unbounded. Deliveries are at most a few hundred
// bytes and every Append is followed by a drain, so steady-state
// occupancy never exceeds one partial record.
type ReassemblyBuffer struct {
	buf []byte
}

// Append adds a fragment to the staging buffer. Zero-length fragments
// are harmless no-ops.
func (b *ReassemblyBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// DrainRecords removes and returns every complete record currently
// buffered, in arrival order. Each returned slice is exactly RecordSize
// bytes and owns its own backing array. After DrainRecords returns,
// fewer than RecordSize bytes remain buffered.
func (b *ReassemblyBuffer) DrainRecords() [][]byte {
	n := len(b.buf) / RecordSize
	if n == 0 {
		return nil
	}

	records := make([][]byte, n)
	for i := 0; i < n; i++ {
		rec := make([]byte, RecordSize)
		copy(rec, b.buf[i*RecordSize:(i+1)*RecordSize])
		records[i] = rec
	}

	rest := copy(b.buf, b.buf[n*RecordSize:])
	b.buf = b.buf[:rest]
	return records
}

// Buffered reports the number of bytes held back waiting for the rest of
// a record.
func (b *ReassemblyBuffer) Buffered() int {
	return len(b.buf)
}

// Reset discards any partial record.
func (b *ReassemblyBuffer) Reset() {
	b.buf = b.buf[:0]
}
