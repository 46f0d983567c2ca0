package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upsidedownlabs/npglink/internal/monitoring"
)

// ErrSessionClosed is returned for fragments arriving after a session
// has started draining or closed.
var ErrSessionClosed = errors.New("telemetry: session closed")

// SessionState tracks a recording session through its lifecycle.
type SessionState int

const (
	StateIdle      SessionState = iota // constructed, nothing received yet
	StateStreaming                     // fragments are being processed
	StateDraining                      // flushing the buffered remainder
	StateClosed                        // terminal
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// BatchWriter receives completed batches for persistence. WriteBatch
// must not return until the batch is on stable storage; an error
// propagates to the delivery (or drain) that triggered the write.
// arrival is the delivery arrival time that completed the batch, carried
// for logging.
type BatchWriter interface {
	WriteBatch(batch []TimestampedSample, arrival time.Time) error
}

// BatchWriterFunc adapts a function to the BatchWriter interface.
type BatchWriterFunc func(batch []TimestampedSample, arrival time.Time) error

// WriteBatch calls f.
func (f BatchWriterFunc) WriteBatch(batch []TimestampedSample, arrival time.Time) error {
	return f(batch, arrival)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Writer       BatchWriter // destination for completed batches (required)
	BatchSize    int         // records per batch (default DefaultBatchSize)
	SampleRateHz float64     // nominal acquisition rate (default DefaultSampleRate)
}

// Session drives one recording: it owns the reassembly buffer, gap
// detector, stats, and batcher, and feeds completed batches to the
// writer. All methods are safe for concurrent use; processing of a
// fragment is atomic with respect to snapshots.
type Session struct {
	mu       sync.Mutex
	state    SessionState
	writer   BatchWriter
	interval time.Duration

	buffer  ReassemblyBuffer
	gaps    GapDetector
	batcher *Batcher
	stats   *StreamStats

	lastArrival    time.Time
	fragments      uint64
	batchesWritten uint64
}

// NewSession creates a Session that emits batches to cfg.Writer.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Writer == nil {
		return nil, errors.New("telemetry: session requires a batch writer")
	}
	rate := cfg.SampleRateHz
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Session{
		state:    StateIdle,
		writer:   cfg.Writer,
		interval: SampleInterval(rate),
		batcher:  NewBatcher(cfg.BatchSize),
		stats:    NewStreamStats(rate),
	}, nil
}

// HandleFragment processes one transport delivery. The bytes are staged
// in the reassembly buffer and every whole record is decoded, then the
// delivery's samples are timestamped against its arrival time before
// batching. Completed batches are written before HandleFragment returns,
// so a write error surfaces to the delivery that filled the batch. A
// failed batch is not requeued.
//
// Fragments arriving after Drain has started are rejected with
// ErrSessionClosed.
func (s *Session) HandleFragment(data []byte, arrival time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDraining, StateClosed:
		return fmt.Errorf("%w: rejecting %d byte fragment in state %s",
			ErrSessionClosed, len(data), s.state)
	case StateIdle:
		s.state = StateStreaming
	}

	s.fragments++
	s.lastArrival = arrival
	monitoring.Debugf("session: fragment %d: %d bytes", s.fragments, len(data))

	s.buffer.Append(data)
	records := s.buffer.DrainRecords()
	if len(records) == 0 {
		return nil
	}

	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		sample, err := DecodeSample(rec)
		if err != nil {
			// Unreachable for records carved by the reassembly buffer;
			// keep the stream alive if it ever happens.
			monitoring.Logf("session: dropping undecodable record: %v", err)
			continue
		}
		missed := s.gaps.Observe(sample.Counter)
		if missed > 0 {
			monitoring.Logf("session: counter gap: %d samples missing before counter %d",
				missed, sample.Counter)
		}
		s.stats.Update(sample, arrival, missed)
		samples = append(samples, sample)
	}

	for _, ts := range ReconstructTimestamps(samples, arrival, s.interval) {
		batch := s.batcher.Push(ts)
		if batch == nil {
			continue
		}
		if err := s.writeLocked(batch, arrival); err != nil {
			return err
		}
	}
	return nil
}

// Drain flushes the batcher's remainder through the normal write path
// and closes the session. Remainder samples keep the timestamps assigned
// at their own deliveries; the last known arrival time is passed to the
// writer. Bytes short of a whole record are discarded. Drain is
// idempotent: draining an already closed session is a no-op.
func (s *Session) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDraining || s.state == StateClosed {
		return nil
	}
	s.state = StateDraining

	var err error
	if rem := s.batcher.DrainRemainder(); len(rem) > 0 {
		err = s.writeLocked(rem, s.lastArrival)
	}
	if n := s.buffer.Buffered(); n > 0 {
		monitoring.Logf("session: discarding %d byte partial record at shutdown", n)
		s.buffer.Reset()
	}
	s.state = StateClosed
	return err
}

// Close drains the session. It exists so shutdown paths can treat the
// session like any other closer.
func (s *Session) Close() error {
	return s.Drain()
}

func (s *Session) writeLocked(batch []TimestampedSample, arrival time.Time) error {
	if err := s.writer.WriteBatch(batch, arrival); err != nil {
		return fmt.Errorf("telemetry: writing batch of %d samples: %w", len(batch), err)
	}
	s.batchesWritten++
	return nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Summary returns the stream counters.
func (s *Session) Summary() Summary {
	return s.stats.Snapshot()
}

// SessionSnapshot is a point-in-time view of a session for the HTTP API.
type SessionSnapshot struct {
	State          string  `json:"state"`
	Fragments      uint64  `json:"fragments"`
	BufferedBytes  int     `json:"buffered_bytes"`
	PendingSamples int     `json:"pending_samples"`
	BatchesWritten uint64  `json:"batches_written"`
	Stats          Summary `json:"stats"`
}

// Snapshot returns the session state and counters in one consistent view.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		State:          s.state.String(),
		Fragments:      s.fragments,
		BufferedBytes:  s.buffer.Buffered(),
		PendingSamples: s.batcher.Pending(),
		BatchesWritten: s.batchesWritten,
		Stats:          s.stats.Snapshot(),
	}
}
