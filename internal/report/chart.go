package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// channelColors gives each ADS channel a stable line colour across every
// rendered chart.
var channelColors = [telemetry.NumChannels]color.Color{
	color.RGBA{R: 214, G: 69, B: 65, A: 255},
	color.RGBA{R: 38, G: 166, B: 91, A: 255},
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
}

// MaxChartPoints bounds a rendered series. Longer sessions are
// downsampled by stride before plotting; at 250 Hz this covers an
// 80-second window at full resolution.
const MaxChartPoints = 20000

// Downsample thins rows by stride so at most maxPoints remain. The
// first row is always kept.
func Downsample(rows []db.SampleRow, maxPoints int) []db.SampleRow {
	if maxPoints <= 0 || len(rows) <= maxPoints {
		return rows
	}
	stride := int(math.Ceil(float64(len(rows)) / float64(maxPoints)))
	out := make([]db.SampleRow, 0, len(rows)/stride+1)
	for i := 0; i < len(rows); i += stride {
		out = append(out, rows[i])
	}
	return out
}

// RenderSessionChart renders the session's channels as a PNG time series
// and writes it to w. The x axis is seconds since the first sample.
func RenderSessionChart(w io.Writer, sessionID string, rows []db.SampleRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("session %s has no recorded samples", sessionID)
	}
	rows = Downsample(rows, MaxChartPoints)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s", sessionID)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "ADC value"

	t0 := rows[0].Time()
	for ch := 0; ch < telemetry.NumChannels; ch++ {
		pts := make(plotter.XYs, len(rows))
		for i, row := range rows {
			pts[i].X = row.Time().Sub(t0).Seconds()
			switch ch {
			case 0:
				pts[i].Y = float64(row.Ch0)
			case 1:
				pts[i].Y = float64(row.Ch1)
			case 2:
				pts[i].Y = float64(row.Ch2)
			}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build ch%d series: %w", ch, err)
		}
		line.Color = channelColors[ch]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("ch%d", ch), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}

// SaveSessionChart renders the session chart to a PNG file.
func SaveSessionChart(path, sessionID string, rows []db.SampleRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := RenderSessionChart(f, sessionID, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
