package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// PacketStatsInterface provides fragment statistics management for the
// ingest paths.
type PacketStatsInterface interface {
	AddFragment(bytes int)
	AddRejected()
	LogStats()
}

// PacketStats tracks fragment statistics with thread-safe operations.
type PacketStats struct {
	mu            sync.Mutex
	fragmentCount int64
	byteCount     int64
	rejectedCount int64
	lastReset     time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddFragment increments fragment count and byte count.
func (ps *PacketStats) AddFragment(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.fragmentCount++
	ps.byteCount += int64(bytes)
}

// AddRejected increments the count of fragments refused by a closing
// session.
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectedCount++
}

// GetAndReset returns current stats and resets counters.
func (ps *PacketStats) GetAndReset() (fragments, bytes, rejected int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	fragments = ps.fragmentCount
	bytes = ps.byteCount
	rejected = ps.rejectedCount

	ps.fragmentCount = 0
	ps.byteCount = 0
	ps.rejectedCount = 0
	ps.lastReset = now

	return
}

// LogStats logs the rates since the previous report and resets the
// counters. Record throughput is derived from byte volume; payloads are
// whole 7-byte records apart from at most one partial record in flight.
func (ps *PacketStats) LogStats() {
	fragments, bytes, rejected, duration := ps.GetAndReset()
	if fragments == 0 && rejected == 0 {
		return
	}

	fragmentsPerSec := float64(fragments) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	recordsPerSec := float64(bytes) / telemetry.RecordSize / duration.Seconds()

	logMsg := fmt.Sprintf("Gateway stats (/sec): %.1f fragments, %.2f KB, %.0f records",
		fragmentsPerSec, kbPerSec, recordsPerSec)
	if rejected > 0 {
		logMsg += fmt.Sprintf(", %d rejected while closing", rejected)
	}
	log.Print(logMsg)
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is the safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddFragment(bytes int) {}
func (n *noopStats) AddRejected()          {}
func (n *noopStats) LogStats()             {}
