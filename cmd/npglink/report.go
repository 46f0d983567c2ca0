package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/report"
)

// runReport prints post-session statistics for a recorded session and
// optionally renders its channel chart to a PNG.
func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	path := fs.String("db", "", "SQLite database path")
	sessionID := fs.String("session", "", "Session ID (default: most recent)")
	pngPath := fs.String("png", "", "Also render the channel chart to this PNG file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *path == "" {
		log.Fatal("report requires -db")
	}

	// Open without schema initialization; reporting never migrates.
	database, err := db.OpenDB(*path)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", *path, err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.Sessions(1)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no recorded sessions")
		}
		id = sessions[0].ID
	}

	rows, err := database.SampleRows(id)
	if err != nil {
		log.Fatalf("Failed to load samples: %v", err)
	}

	rep, err := report.BuildSessionReport(id, rows)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(rep.Format())

	if *pngPath != "" {
		if err := report.SaveSessionChart(*pngPath, id, rows); err != nil {
			log.Fatalf("Failed to render chart: %v", err)
		}
		log.Printf("chart written to %s", *pngPath)
	}
}
