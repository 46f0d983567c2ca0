package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/fsutil"
	"github.com/upsidedownlabs/npglink/internal/recorder"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
)

// TestRecordEndToEnd drives the same pipeline main wires up: fragments
// through a session into CSV and SQLite, then drain, finish, and
// summary.
func TestRecordEndToEnd(t *testing.T) {
	testingDir := t.TempDir()

	d, err := db.NewDB(filepath.Join(testingDir, "npg_test.db"))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	start := time.Unix(1700000000, 0).UTC()
	row, err := d.CreateSession("NPG", "mock", 250, 25, start)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	filesystem := fsutil.OSFileSystem{}
	csvPath := filepath.Join(testingDir, "session.csv")
	csvW, err := recorder.NewCSVWriter(filesystem, csvPath)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	writer := recorder.NewMultiWriter(csvW, recorder.NewDBWriter(d, row.ID))
	session, err := telemetry.NewSession(telemetry.SessionConfig{
		Writer:       writer,
		BatchSize:    25,
		SampleRateHz: 250,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	// Stream 50 samples as two full-batch deliveries.
	counter := uint8(0)
	for delivery := 0; delivery < 2; delivery++ {
		var frame []byte
		for i := 0; i < 25; i++ {
			frame = telemetry.AppendSample(frame, telemetry.Sample{
				Counter:  counter,
				Channels: [telemetry.NumChannels]uint16{uint16(100 + int(counter)), 2000, 3000},
			})
			counter++
		}
		arrival := start.Add(time.Duration(delivery+1) * 100 * time.Millisecond)
		if err := session.HandleFragment(frame, arrival); err != nil {
			t.Fatalf("HandleFragment failed: %v", err)
		}
	}

	if err := session.Drain(); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if err := csvW.Close(); err != nil {
		t.Fatalf("CSV close failed: %v", err)
	}

	sum := session.Summary()
	if sum.TotalSamples != 50 {
		t.Errorf("total samples = %d, want 50", sum.TotalSamples)
	}
	if sum.MissingSamples != 0 {
		t.Errorf("missing samples = %d, want 0", sum.MissingSamples)
	}

	if err := d.FinishSession(row.ID, start.Add(time.Second), sum); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}

	// All 50 samples are in the database and the session row carries
	// the stream totals.
	count, err := d.SampleCount(row.ID)
	if err != nil {
		t.Fatalf("SampleCount failed: %v", err)
	}
	if count != 50 {
		t.Errorf("sample count = %d, want 50", count)
	}

	stored, err := d.SessionByID(row.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if stored.TotalSamples != 50 {
		t.Errorf("stored total samples = %d, want 50", stored.TotalSamples)
	}
	if stored.EndedAt == nil {
		t.Error("stored session missing end time")
	}

	// CSV has a header plus one row per sample.
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 51 {
		t.Fatalf("CSV has %d lines, want 51", len(lines))
	}
	if lines[0] != "timestamp_unix,counter,ch0,ch1,ch2" {
		t.Errorf("unexpected CSV header: %s", lines[0])
	}

	// The summary renders and lands next to the CSV.
	sw := &recorder.SummaryWriter{FS: filesystem, Timezone: "UTC"}
	summaryPath := recorder.SummaryPath(csvPath)
	if err := sw.Write(summaryPath, sum); err != nil {
		t.Fatalf("Summary write failed: %v", err)
	}
	content, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	if !strings.Contains(string(content), "Total samples received: 50") {
		t.Errorf("summary missing sample total:\n%s", content)
	}
}

// TestRecordEndToEnd_PersistenceFailureSurfaces verifies that a failed
// batch write propagates out of HandleFragment the way the subscriber
// loop expects.
func TestRecordEndToEnd_PersistenceFailureSurfaces(t *testing.T) {
	failing := telemetry.BatchWriterFunc(func(batch []telemetry.TimestampedSample, arrival time.Time) error {
		return os.ErrPermission
	})
	session, err := telemetry.NewSession(telemetry.SessionConfig{Writer: failing, BatchSize: 5})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	var frame []byte
	for i := 0; i < 5; i++ {
		frame = telemetry.AppendSample(frame, telemetry.Sample{Counter: uint8(i)})
	}
	if err := session.HandleFragment(frame, time.Now()); err == nil {
		t.Fatal("expected write failure to surface from HandleFragment")
	}
}
