package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/report"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
	"github.com/upsidedownlabs/npglink/internal/units"
)

// echartsAssetsPrefix hosts the echarts runtime for rendered chart pages.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showSessionChart renders an interactive line chart (HTML) of the three
// channels for a recorded session.
// Query params:
//   - session_id (optional; defaults to the most recent session)
//   - max_points (optional; default 4000) to reduce payload size
//   - units (optional; counts, mv, or uv; default counts)
func (s *Server) showSessionChart(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database recording disabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessions, err := s.db.Sessions(1)
		if err != nil || len(sessions) == 0 {
			s.writeJSONError(w, http.StatusNotFound, "no recorded sessions")
			return
		}
		sessionID = sessions[0].ID
	}

	maxPoints := 4000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.Counts
	}
	if !units.IsValid(unit) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q; valid values: %s", unit, units.GetValidUnitsString()))
		return
	}

	rows, err := s.db.SampleRows(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	if len(rows) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no samples recorded for session")
		return
	}

	rows = report.Downsample(rows, maxPoints)

	xAxis := make([]string, len(rows))
	var series [telemetry.NumChannels][]opts.LineData
	for ch := range series {
		series[ch] = make([]opts.LineData, len(rows))
	}
	t0 := rows[0].Time()
	for i, row := range rows {
		xAxis[i] = fmt.Sprintf("%.3f", row.Time().Sub(t0).Seconds())
		series[0][i] = opts.LineData{Value: units.ConvertReading(row.Ch0, unit)}
		series[1][i] = opts.LineData{Value: units.ConvertReading(row.Ch1, unit)}
		series[2][i] = opts.LineData{Value: units.ConvertReading(row.Ch2, unit)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NPG-Lite Session", Theme: "dark", Width: "1400px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Channel Time Series", Subtitle: fmt.Sprintf("session=%s points=%d", sessionID, len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Seconds"}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Label(unit)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis)
	for ch := range series {
		line.AddSeries(fmt.Sprintf("ch%d", ch), series[ch])
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// sessionChartPNG renders a recorded session as a static PNG.
func (s *Server) sessionChartPNG(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database recording disabled")
		return
	}

	sessionID := r.PathValue("id")
	if _, err := s.db.SessionByID(sessionID); err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load session: %v", err))
		return
	}

	rows, err := s.db.SampleRows(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	if len(rows) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no samples recorded for session")
		return
	}

	var buf bytes.Buffer
	if err := report.RenderSessionChart(&buf, sessionID, rows); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
