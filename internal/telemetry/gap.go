package telemetry

// GapDetector tracks the rolling 8-bit frame counter and reports how
// many records were lost between consecutive observations.
//
// The counter wraps 255 → 0, so a gap is the forward cyclic distance
// from the expected value to the observed one. Losses of an exact
// multiple of 256 records land back on the expected value and are
// invisible; a repeated counter is indistinguishable from a 255-record
// gap and counts as one. With 7-byte records a silent loss means 1792
// consecutive bytes vanished in perfect alignment, which the transports
// in use do not produce.
type GapDetector struct {
	last    uint8
	primed  bool
	missing uint64
}

// Observe records the counter of the next decoded sample and returns how
// many samples were skipped since the previous one. The first
// observation establishes the baseline and always returns 0.
func (g *GapDetector) Observe(counter uint8) uint32 {
	if !g.primed {
		g.primed = true
		g.last = counter
		return 0
	}

	expected := g.last + 1 // uint8 arithmetic wraps at 256
	g.last = counter
	if counter == expected {
		return 0
	}

	missed := uint32(counter - expected) // forward cyclic distance
	g.missing += uint64(missed)
	return missed
}

// MissingTotal returns the cumulative number of samples the detector has
// seen skipped.
func (g *GapDetector) MissingTotal() uint64 {
	return g.missing
}

// LastCounter returns the most recently observed counter value. The
// second return is false until the first observation.
func (g *GapDetector) LastCounter() (uint8, bool) {
	return g.last, g.primed
}

// Reset returns the detector to its unprimed state.
func (g *GapDetector) Reset() {
	*g = GapDetector{}
}
