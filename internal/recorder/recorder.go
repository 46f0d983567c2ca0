// Package recorder persists completed sample batches. It provides the
// CSV writer, the database adapter, and the fan-out composition the
// session driver wires between the telemetry pipeline and its outputs,
// plus the end-of-session summary report.
//
// All writers implement telemetry.BatchWriter and share its durability
// contract: WriteBatch does not return until the batch is on stable
// storage.
package recorder

import (
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// MultiWriter duplicates every batch to a list of writers, in order.
// The first write error stops the fan-out and propagates to the caller,
// so a failing destination is never silently skipped. Destinations
// earlier in the list will have stored a batch that later ones did not;
// the session surfaces the error and stops rather than papering over
// the divergence.
type MultiWriter struct {
	writers []telemetry.BatchWriter
}

// NewMultiWriter creates a writer that fans batches out to all writers.
func NewMultiWriter(writers ...telemetry.BatchWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteBatch delivers the batch to each writer in order, stopping at the
// first error.
func (m *MultiWriter) WriteBatch(batch []telemetry.TimestampedSample, arrival time.Time) error {
	for _, w := range m.writers {
		if err := w.WriteBatch(batch, arrival); err != nil {
			return err
		}
	}
	return nil
}
