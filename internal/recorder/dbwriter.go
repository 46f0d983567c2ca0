package recorder

import (
	"time"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// DBWriter records batches as sample rows of one recording session. It
// adapts db.InsertBatch, which commits each batch in a single
// transaction, to the telemetry.BatchWriter interface.
type DBWriter struct {
	db        *db.DB
	sessionID string
}

// NewDBWriter binds database and the session row batches are stored
// under. The session must already exist; foreign keys reject rows for
// unknown sessions.
func NewDBWriter(database *db.DB, sessionID string) *DBWriter {
	return &DBWriter{db: database, sessionID: sessionID}
}

// WriteBatch inserts the batch into the samples table. The arrival time
// is not stored; every sample carries its own reconstructed timestamp.
func (w *DBWriter) WriteBatch(batch []telemetry.TimestampedSample, arrival time.Time) error {
	return w.db.InsertBatch(w.sessionID, batch)
}

// SessionID returns the session row the writer records under.
func (w *DBWriter) SessionID() string {
	return w.sessionID
}
