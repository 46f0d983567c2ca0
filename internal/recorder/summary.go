package recorder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/upsidedownlabs/npglink/internal/fsutil"
	"github.com/upsidedownlabs/npglink/internal/monitoring"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
	"github.com/upsidedownlabs/npglink/internal/units"
)

const summaryBanner = "============================================================"

// SummaryWriter renders end-of-session statistics into the plain-text
// report archived next to the CSV recording.
type SummaryWriter struct {
	FS fsutil.FileSystem

	// Timezone is the IANA zone timestamps are rendered in.
	// units.DefaultTimezone applies when empty.
	Timezone string
}

// SummaryPath derives the summary filename from the recording path:
// data.csv becomes data_summary.txt.
func SummaryPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + "_summary.txt"
}

// Render formats the summary report. A summary with no observed samples
// renders a short notice instead of timing lines.
func (w *SummaryWriter) Render(sum telemetry.Summary) (string, error) {
	zone := w.Timezone
	if zone == "" {
		zone = units.DefaultTimezone
	}

	var b strings.Builder
	b.WriteString(summaryBanner + "\n")
	b.WriteString("NPG-Lite Data Collection Summary\n")
	b.WriteString(summaryBanner + "\n\n")

	fmt.Fprintf(&b, "Total samples received: %d\n", sum.TotalSamples)
	fmt.Fprintf(&b, "Samples per channel: %d\n", sum.TotalSamples)
	fmt.Fprintf(&b, "Missing samples detected: %d\n\n", sum.MissingSamples)

	if !sum.FirstSampleTime.IsZero() && !sum.LastSampleTime.IsZero() {
		first, err := units.FormatTimestamp(sum.FirstSampleTime, zone)
		if err != nil {
			return "", fmt.Errorf("failed to format first sample time: %w", err)
		}
		last, err := units.FormatTimestamp(sum.LastSampleTime, zone)
		if err != nil {
			return "", fmt.Errorf("failed to format last sample time: %w", err)
		}
		fmt.Fprintf(&b, "First sample received: %s\n", first)
		fmt.Fprintf(&b, "Last sample received:  %s\n\n", last)

		fmt.Fprintf(&b, "Total time elapsed: %s\n", units.FormatElapsed(sum.Elapsed))
		fmt.Fprintf(&b, "Total time elapsed (seconds): %.3f\n\n", sum.Elapsed.Seconds())

		fmt.Fprintf(&b, "Expected sample rate: %.1f Hz\n", sum.NominalRateHz)
		fmt.Fprintf(&b, "Actual sample rate: %.2f Hz\n", sum.ActualRateHz)
	} else {
		b.WriteString("No samples were received.\n")
	}

	b.WriteString("\n" + summaryBanner + "\n")
	return b.String(), nil
}

// Write renders the summary and stores it at path.
func (w *SummaryWriter) Write(path string, sum telemetry.Summary) error {
	text, err := w.Render(sum)
	if err != nil {
		return err
	}
	if err := w.FS.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	monitoring.Logf("recorder: summary saved to %s", path)
	return nil
}
