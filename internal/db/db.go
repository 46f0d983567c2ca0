// Package db persists recording sessions and their samples to SQLite.
//
// A session row is created when recording starts and finalized with the
// stream totals at drain time. Samples arrive in batches; each batch is
// committed in a single transaction so a batch is either fully on disk
// or absent. The connection runs with synchronous=FULL, so a returned
// commit means the data survived a power cut.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// ErrSessionNotFound is returned when a session id matches no row.
var ErrSessionNotFound = errors.New("db: session not found")

type DB struct {
	*sql.DB
}

// Pragmas applied to every connection. WAL keeps readers (tailsql, the
// API) from blocking the writer; synchronous=FULL makes each commit an
// fsync of the WAL.
var connectionPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=FULL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies connection pragmas without
// touching the schema. The migrate CLI uses this directly; everything
// else should go through NewDB.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range connectionPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// NewDB opens the database and brings the schema to the latest embedded
// migration version.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Session is one recording run. Times are unix seconds; EndedAt is nil
// while the session is still streaming.
type Session struct {
	ID             string   `json:"id"`
	Device         string   `json:"device"`
	Transport      string   `json:"transport"`
	SampleRateHz   float64  `json:"sample_rate_hz"`
	BatchSize      int      `json:"batch_size"`
	StartedAt      float64  `json:"started_at"`
	EndedAt        *float64 `json:"ended_at"`
	TotalSamples   int64    `json:"total_samples"`
	MissingSamples int64    `json:"missing_samples"`
	ActualRateHz   float64  `json:"actual_rate_hz"`
}

// SampleRow is one persisted sample.
type SampleRow struct {
	SessionID string  `json:"session_id"`
	Ts        float64 `json:"ts"`
	Counter   uint8   `json:"counter"`
	Ch0       uint16  `json:"ch0"`
	Ch1       uint16  `json:"ch1"`
	Ch2       uint16  `json:"ch2"`
}

// Time converts the row's unix-seconds timestamp back to a time.Time.
// Rounding recovers the original microsecond exactly; truncation would
// drop one for values that land just under the boundary.
func (r SampleRow) Time() time.Time {
	return time.UnixMicro(int64(math.Round(r.Ts * 1e6)))
}

// unixSeconds renders t as unix seconds with microsecond precision,
// matching the CSV column format.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// CreateSession inserts a new session row and returns it. The id is a
// fresh UUID; callers thread it through their batch writer.
func (db *DB) CreateSession(device, transport string, sampleRateHz float64, batchSize int, startedAt time.Time) (*Session, error) {
	s := &Session{
		ID:           uuid.NewString(),
		Device:       device,
		Transport:    transport,
		SampleRateHz: sampleRateHz,
		BatchSize:    batchSize,
		StartedAt:    unixSeconds(startedAt),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (id, device, transport, sample_rate_hz, batch_size, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Device, s.Transport, s.SampleRateHz, s.BatchSize, s.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// FinishSession stamps the end time and stream totals onto the session
// row. Finishing an unknown session is an error.
func (db *DB) FinishSession(id string, endedAt time.Time, sum telemetry.Summary) error {
	res, err := db.Exec(
		`UPDATE sessions
		 SET ended_at = ?, total_samples = ?, missing_samples = ?, actual_rate_hz = ?
		 WHERE id = ?`,
		unixSeconds(endedAt), int64(sum.TotalSamples), int64(sum.MissingSamples), sum.ActualRateHz, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// InsertBatch writes one batch of samples inside a single transaction.
// When it returns nil the batch is committed and synced; on error the
// transaction is rolled back and no partial batch remains.
func (db *DB) InsertBatch(sessionID string, batch []telemetry.TimestampedSample) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO samples (session_id, ts, counter, ch0, ch1, ch2)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range batch {
		if _, err := stmt.Exec(
			sessionID, unixSeconds(s.Timestamp), s.Counter,
			s.Channels[0], s.Channels[1], s.Channels[2],
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch of %d samples: %w", len(batch), err)
	}
	return nil
}

const sessionColumns = `id, device, transport, sample_rate_hz, batch_size,
	started_at, ended_at, total_samples, missing_samples, actual_rate_hz`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.Device, &s.Transport, &s.SampleRateHz, &s.BatchSize,
		&s.StartedAt, &s.EndedAt, &s.TotalSamples, &s.MissingSamples, &s.ActualRateHz,
	)
	return s, err
}

// SessionByID fetches one session row.
func (db *DB) SessionByID(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions returns up to limit sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

const sampleColumns = `session_id, ts, counter, ch0, ch1, ch2`

func scanSampleRows(rows *sql.Rows) ([]SampleRow, error) {
	defer rows.Close()

	var samples []SampleRow
	for rows.Next() {
		var r SampleRow
		if err := rows.Scan(&r.SessionID, &r.Ts, &r.Counter, &r.Ch0, &r.Ch1, &r.Ch2); err != nil {
			return nil, err
		}
		samples = append(samples, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// RecentSamples returns the latest limit samples across all sessions,
// newest first. The live API uses it to show the tail of the stream.
func (db *DB) RecentSamples(limit int) ([]SampleRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		`SELECT `+sampleColumns+` FROM samples ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanSampleRows(rows)
}

// SampleRows returns every sample of one session in acquisition order.
// Reports iterate the full set; at 250 Hz a 10 minute session is 150k
// rows, well within a single query.
func (db *DB) SampleRows(sessionID string) ([]SampleRow, error) {
	rows, err := db.Query(
		`SELECT `+sampleColumns+` FROM samples WHERE session_id = ? ORDER BY ts ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return scanSampleRows(rows)
}

// SampleCount returns the number of persisted samples for a session.
func (db *DB) SampleCount(sessionID string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM samples WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
