// Package report computes post-session statistics over recorded samples
// and renders channel charts for them.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// ChannelStats summarises one channel's signal over a session.
type ChannelStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    uint16  `json:"min"`
	Max    uint16  `json:"max"`
}

// SessionReport aggregates a recorded session: per-channel statistics,
// the observed sample rate, and counter gap totals.
type SessionReport struct {
	SessionID      string        `json:"session_id"`
	Samples        int           `json:"samples"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	Elapsed        time.Duration `json:"elapsed"`
	ObservedRateHz float64       `json:"observed_rate_hz"`

	// GapEvents counts counter discontinuities; MissedSamples sums the
	// samples lost across them.
	GapEvents     int    `json:"gap_events"`
	MissedSamples uint64 `json:"missed_samples"`

	Channels [telemetry.NumChannels]ChannelStats `json:"channels"`
}

// BuildSessionReport computes statistics over the persisted rows of one
// session. Rows must be in insertion order, which SampleRows guarantees.
func BuildSessionReport(sessionID string, rows []db.SampleRow) (*SessionReport, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("session %s has no recorded samples", sessionID)
	}

	var (
		gaps      telemetry.GapDetector
		gapEvents int
		values    [telemetry.NumChannels][]float64
		mins      [telemetry.NumChannels]uint16
		maxs      [telemetry.NumChannels]uint16
	)
	for ch := range mins {
		mins[ch] = math.MaxUint16
		values[ch] = make([]float64, 0, len(rows))
	}

	for _, row := range rows {
		if missed := gaps.Observe(row.Counter); missed > 0 {
			gapEvents++
		}
		chans := [telemetry.NumChannels]uint16{row.Ch0, row.Ch1, row.Ch2}
		for ch, v := range chans {
			values[ch] = append(values[ch], float64(v))
			if v < mins[ch] {
				mins[ch] = v
			}
			if v > maxs[ch] {
				maxs[ch] = v
			}
		}
	}

	rep := &SessionReport{
		SessionID:     sessionID,
		Samples:       len(rows),
		Start:         rows[0].Time(),
		End:           rows[len(rows)-1].Time(),
		GapEvents:     gapEvents,
		MissedSamples: gaps.MissingTotal(),
	}
	rep.Elapsed = rep.End.Sub(rep.Start)
	if rep.Elapsed > 0 {
		rep.ObservedRateHz = float64(len(rows)) / rep.Elapsed.Seconds()
	}

	for ch := 0; ch < telemetry.NumChannels; ch++ {
		stats := ChannelStats{
			Mean: stat.Mean(values[ch], nil),
			Min:  mins[ch],
			Max:  maxs[ch],
		}
		if len(values[ch]) > 1 {
			stats.StdDev = stat.StdDev(values[ch], nil)
		}
		rep.Channels[ch] = stats
	}

	return rep, nil
}

// Format renders the report as console text.
func (r *SessionReport) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session %s\n", r.SessionID)
	fmt.Fprintf(&b, "Samples: %d over %v (%.2f Hz observed)\n",
		r.Samples, r.Elapsed.Round(time.Millisecond), r.ObservedRateHz)
	fmt.Fprintf(&b, "Window:  %s to %s\n",
		r.Start.UTC().Format(time.RFC3339Nano), r.End.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Gaps:    %d events, %d samples missed\n", r.GapEvents, r.MissedSamples)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-8s %12s %12s %8s %8s\n", "channel", "mean", "stddev", "min", "max")
	for ch, cs := range r.Channels {
		fmt.Fprintf(&b, "%-8s %12.2f %12.2f %8d %8d\n",
			fmt.Sprintf("ch%d", ch), cs.Mean, cs.StdDev, cs.Min, cs.Max)
	}

	return b.String()
}
