// Package api exposes the recorder's HTTP surface: live stream
// statistics, recorded sessions and samples, device commands, and the
// effective configuration.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/upsidedownlabs/npglink/internal/config"
	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/streammux"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// ANSI colors for request log lines. The recorder usually runs in a
// foreground terminal during bench sessions, so status codes are
// color-coded for scanning.
const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[1;32m"
	colorRed    = "\033[1;31m"
)

// SessionSnapshotter provides the live session view served by
// /api/stats. telemetry.Session implements it.
type SessionSnapshotter interface {
	Snapshot() telemetry.SessionSnapshot
}

type Server struct {
	m       streammux.StreamMuxInterface
	db      *db.DB
	session SessionSnapshotter
	config  *config.RecorderConfig
}

// NewServer creates the API server. Any of m, database, and session may
// be nil when the corresponding subsystem is disabled; their endpoints
// then report 503.
func NewServer(m streammux.StreamMuxInterface, database *db.DB, session SessionSnapshotter, cfg *config.RecorderConfig) *Server {
	return &Server{
		m:       m,
		db:      database,
		session: session,
		config:  cfg,
	}
}

// statusRecorder captures the status code a handler writes. Flush is
// forwarded so streaming responses keep working through the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusColor picks the ANSI color for a status code band.
func statusColor(code int) string {
	switch {
	case code >= 400:
		return colorRed
	case code >= 300:
		return colorYellow
	case code >= 200:
		return colorGreen
	}
	return ""
}

// LoggingMiddleware logs one line per request: status, method, URI, and
// handler latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[%s%d%s] %s %s%s%s %.1fms",
			statusColor(rec.status), rec.status, colorReset,
			r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Microseconds())/1000,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/charts/session", s.showSessionChart)
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", s.sessionChartPNG)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.session == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no active recording session")
		return
	}

	if err := json.NewEncoder(w).Encode(s.session.Snapshot()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database recording disabled")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database recording disabled")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	samples, err := s.db.RecentSamples(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(samples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write samples")
		return
	}
}

// sendCommandHandler forwards an operator command to the device. The
// command is validated against the firmware vocabulary first, so this
// endpoint cannot write arbitrary bytes at the port.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command, err := streammux.ParseCommand(r.FormValue("command"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.m == nil {
		http.Error(w, "No device attached", http.StatusServiceUnavailable)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config
	if cfg == nil {
		cfg = config.EmptyRecorderConfig()
	}

	// Resolved values, not the raw file contents: omitted fields show
	// the defaults the recorder is actually running with.
	resolved := map[string]interface{}{
		"device_name_prefix": cfg.GetDeviceNamePrefix(),
		"serial_port":        cfg.GetSerialPort(),
		"baud_rate":          cfg.GetBaudRate(),
		"sample_rate_hz":     cfg.GetSampleRateHz(),
		"batch_size":         cfg.GetBatchSize(),
		"streaming_duration": cfg.GetStreamingDuration().String(),
		"out_file":           cfg.GetOutFile(),
		"database_path":      cfg.GetDatabasePath(),
		"summary_timezone":   cfg.GetSummaryTimezone(),
		"listen_addr":        cfg.GetListenAddr(),
		"udp_listen":         cfg.GetUDPListen(),
		"log_interval":       cfg.GetLogInterval().String(),
	}

	if err := json.NewEncoder(w).Encode(resolved); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
