package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes registers the database debug surface: a tailSQL
// live query UI, a VACUUM INTO backup download, and a table size/row
// count summary. All of it lands under the tsweb /debug/ tree, which
// refuses non-local callers unless a debug key is configured.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://npglink.db", db.DB, &tailsql.DBOptions{
		Label: "NPG-Lite recordings",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Table row counts and database size", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("Failed to encode db stats: %v", err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// Remove the on-disk copy once it has been sent.
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

// TableStats is the per-table slice of the stats report.
type TableStats struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// DatabaseStats summarizes database size and table populations for the
// db-stats debug endpoint.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	PageCount   int64        `json:"page_count"`
	PageSize    int64        `json:"page_size"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats reports the database file size and the row count of
// every user table, largest first. At 250 Hz the samples table grows by
// ~21.6M rows/day of streaming, so this is the first place to look when
// the disk fills.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := db.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to query page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to query page_size: %w", err)
	}
	stats.TotalSizeMB = float64(stats.PageCount*stats.PageSize) / (1024 * 1024)

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		var count int64
		// Table names come from sqlite_master, not user input.
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, RowCount: count})
	}

	sort.Slice(stats.Tables, func(i, j int) bool {
		return stats.Tables[i].RowCount > stats.Tables[j].RowCount
	})

	return stats, nil
}
