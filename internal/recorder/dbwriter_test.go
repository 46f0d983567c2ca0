package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsidedownlabs/npglink/internal/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "recorder_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDBWriter_WriteBatch(t *testing.T) {
	d := newTestDB(t)

	start := time.Unix(1700000000, 0)
	sess, err := d.CreateSession("NPG-Lite", "serial", 250, 25, start)
	require.NoError(t, err)

	w := NewDBWriter(d, sess.ID)
	assert.Equal(t, sess.ID, w.SessionID())

	require.NoError(t, w.WriteBatch(makeBatch(25, 0, start), start.Add(100*time.Millisecond)))
	require.NoError(t, w.WriteBatch(makeBatch(25, 25, start.Add(100*time.Millisecond)), start.Add(200*time.Millisecond)))

	count, err := d.SampleCount(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)

	rows, err := d.SampleRows(sess.ID)
	require.NoError(t, err)
	require.Len(t, rows, 50)
	assert.Equal(t, uint8(0), rows[0].Counter)
	assert.Equal(t, uint8(49), rows[49].Counter)
}

func TestDBWriter_EmptyBatch(t *testing.T) {
	d := newTestDB(t)

	sess, err := d.CreateSession("NPG-Lite", "serial", 250, 25, time.Now())
	require.NoError(t, err)

	w := NewDBWriter(d, sess.ID)
	assert.NoError(t, w.WriteBatch(nil, time.Now()))

	count, err := d.SampleCount(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDBWriter_ClosedDB(t *testing.T) {
	d := newTestDB(t)
	sess, err := d.CreateSession("NPG-Lite", "serial", 250, 25, time.Now())
	require.NoError(t, err)
	d.Close()

	w := NewDBWriter(d, sess.ID)
	assert.Error(t, w.WriteBatch(makeBatch(1, 0, time.Now()), time.Now()))
}
