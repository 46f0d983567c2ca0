package recorder

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/upsidedownlabs/npglink/internal/fsutil"
	"github.com/upsidedownlabs/npglink/internal/monitoring"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// csvHeader is the column order downstream analysis scripts expect.
var csvHeader = []string{"timestamp_unix", "counter", "ch0", "ch1", "ch2"}

// CSVWriter appends timestamped samples to a CSV file, one row per
// sample. Every WriteBatch flushes the encoder and syncs the file before
// returning, so a batch acknowledged to the session survives a crash or
// power cut.
type CSVWriter struct {
	mu     sync.Mutex
	path   string
	file   fsutil.File
	w      *csv.Writer
	rows   uint64
	closed bool
}

// NewCSVWriter creates path on fs, making any missing parent
// directories, and writes the header row. The header is synced
// immediately so even an empty recording identifies its columns.
func NewCSVWriter(fs fsutil.FileSystem, path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." && dir != string(filepath.Separator) {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file %s: %w", path, err)
	}

	c := &CSVWriter{path: path, file: f, w: csv.NewWriter(f)}
	if err := c.writeAndSync(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return c, nil
}

// WriteBatch appends one row per sample and forces the bytes to stable
// storage before returning. Timestamps are rendered as unix seconds with
// six decimals, the same microsecond precision the samples table stores.
func (c *CSVWriter) WriteBatch(batch []telemetry.TimestampedSample, arrival time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("csv writer for %s is closed", c.path)
	}
	if len(batch) == 0 {
		return nil
	}

	for _, s := range batch {
		row := []string{
			fmt.Sprintf("%.6f", float64(s.Timestamp.UnixMicro())/1e6),
			strconv.Itoa(int(s.Counter)),
			strconv.Itoa(int(s.Channels[0])),
			strconv.Itoa(int(s.Channels[1])),
			strconv.Itoa(int(s.Channels[2])),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	if err := c.flushAndSync(); err != nil {
		return err
	}

	c.rows += uint64(len(batch))
	monitoring.Debugf("recorder: wrote %d samples to %s (last_counter=%d)",
		len(batch), c.path, batch[len(batch)-1].Counter)
	return nil
}

// writeAndSync writes a single row and pushes it to stable storage.
func (c *CSVWriter) writeAndSync(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	return c.flushAndSync()
}

func (c *CSVWriter) flushAndSync() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV rows: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", c.path, err)
	}
	return nil
}

// Rows returns the number of sample rows written, header excluded.
func (c *CSVWriter) Rows() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Path returns the output file path.
func (c *CSVWriter) Path() string {
	return c.path
}

// Close flushes any buffered rows and closes the file. Close is
// idempotent; writes after Close fail.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	flushErr := c.flushAndSync()
	closeErr := c.file.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", c.path, closeErr)
	}
	return nil
}
