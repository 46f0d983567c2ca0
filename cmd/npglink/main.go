// Command npglink records biopotential telemetry from the NPG-Lite
// board: it reassembles the notification stream into samples, batches
// them to CSV and SQLite, and serves live statistics over HTTP.
//
// Besides the default recording mode it offers three subcommands:
// migrate (database schema management), report (post-session
// statistics), and version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/upsidedownlabs/npglink/internal/api"
	"github.com/upsidedownlabs/npglink/internal/config"
	"github.com/upsidedownlabs/npglink/internal/db"
	"github.com/upsidedownlabs/npglink/internal/fsutil"
	"github.com/upsidedownlabs/npglink/internal/gateway"
	"github.com/upsidedownlabs/npglink/internal/recorder"
	"github.com/upsidedownlabs/npglink/internal/streammux"
	"github.com/upsidedownlabs/npglink/internal/telemetry"
	"github.com/upsidedownlabs/npglink/internal/timeutil"
	"github.com/upsidedownlabs/npglink/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to recorder config JSON (flags override file values)")
	devMode        = flag.Bool("dev", false, "Stream synthetic data from a mock device instead of hardware")
	portPath       = flag.String("port", "", "Serial port path (default: first discovered port)")
	baudRate       = flag.Int("baud", 0, "Serial baud rate")
	udpListen      = flag.String("udp-listen", "", "Receive WiFi bridge datagrams on this UDP address instead of a serial port")
	replayFile     = flag.String("replay", "", "Replay bridge traffic from a pcap capture instead of a live transport")
	replayPort     = flag.Int("replay-port", 0, "Only replay datagrams addressed to this UDP port (0 = all)")
	replayRealtime = flag.Bool("replay-realtime", false, "Pace replay by capture timestamps")
	replaySpeed    = flag.Float64("replay-speed", 1.0, "Realtime replay speed multiplier")
	outFile        = flag.String("outfile", "", "CSV output path")
	dbPath         = flag.String("db", "", "SQLite database path (empty disables database recording)")
	listenAddr     = flag.String("listen", "", "HTTP listen address (empty disables the server)")
	duration       = flag.Duration("duration", 0, "Streaming duration (0 = unlimited)")
	timezone       = flag.String("timezone", "", "IANA timezone for summary timestamps")
	writeSummary   = flag.Bool("summary", true, "Write the session summary file next to the CSV")
)

// visitedFlags reports which flags were set explicitly on the command
// line, so unset flags never clobber config file values.
func visitedFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlagOverrides writes explicitly-set flag values over the loaded
// configuration. Flags always win over file values.
func applyFlagOverrides(cfg *config.RecorderConfig, set map[string]bool) {
	if set["port"] {
		cfg.SerialPort = portPath
	}
	if set["baud"] {
		cfg.BaudRate = baudRate
	}
	if set["udp-listen"] {
		cfg.UDPListen = udpListen
	}
	if set["outfile"] {
		cfg.OutFile = outFile
	}
	if set["db"] {
		cfg.DatabasePath = dbPath
	}
	if set["listen"] {
		cfg.ListenAddr = listenAddr
	}
	if set["duration"] {
		d := duration.String()
		cfg.StreamingDuration = &d
	}
	if set["timezone"] {
		cfg.SummaryTimezone = timezone
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", "npg-sessions.db", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	db.RunMigrateCommand(fs.Args(), *path)
}

// Main
func main() {
	// Subcommands are dispatched before flag.Parse so each can own its
	// flag set.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrate(os.Args[2:])
			return
		case "report":
			runReport(os.Args[2:])
			return
		case "version":
			fmt.Printf("npglink %s\n", version.String())
			return
		}
	}

	flag.Parse()

	cfg := config.EmptyRecorderConfig()
	if *configPath != "" {
		loaded, err := config.LoadRecorderConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg, visitedFlags())
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *replayFile != "" && cfg.GetUDPListen() != "" {
		log.Fatal("-replay and -udp-listen are mutually exclusive")
	}

	clk := timeutil.RealClock{}
	filesystem := fsutil.OSFileSystem{}

	// Transport. A stream mux owns a serial (or mock) device; the UDP
	// gateway and pcap replay feed the session directly.
	var m streammux.StreamMuxInterface
	transport := "serial"
	switch {
	case *replayFile != "":
		transport = "pcap"
	case cfg.GetUDPListen() != "":
		transport = "udp"
	case *devMode:
		transport = "mock"
		m = streammux.NewMockStreamMux(cfg.GetSampleRateHz())
	default:
		path := cfg.GetSerialPort()
		if path == "" {
			discovered, err := streammux.DiscoverPort()
			if err != nil {
				log.Fatalf("Failed to find a serial port: %v", err)
			}
			path = discovered
		}
		mux, err := streammux.NewRealStreamMux(path, streammux.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			log.Fatalf("Failed to open serial port %s: %v", path, err)
		}
		log.Printf("opened %s at %d baud", path, cfg.GetBaudRate())
		m = mux
	}
	if m != nil {
		defer m.Close()
	}

	// Output writers: CSV always, database when configured.
	outPath := cfg.GetOutFile()
	csvW, err := recorder.NewCSVWriter(filesystem, outPath)
	if err != nil {
		log.Fatalf("Failed to create CSV recording %s: %v", outPath, err)
	}

	writers := []telemetry.BatchWriter{csvW}

	var database *db.DB
	var dbSessionID string
	if path := cfg.GetDatabasePath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open database %s: %v", path, err)
		}
		defer database.Close()

		row, err := database.CreateSession(cfg.GetDeviceNamePrefix(), transport, cfg.GetSampleRateHz(), cfg.GetBatchSize(), clk.Now())
		if err != nil {
			log.Fatalf("Failed to create session row: %v", err)
		}
		dbSessionID = row.ID
		log.Printf("recording session %s to %s", dbSessionID, path)
		writers = append(writers, recorder.NewDBWriter(database, dbSessionID))
	}

	var writer telemetry.BatchWriter = csvW
	if len(writers) > 1 {
		writer = recorder.NewMultiWriter(writers...)
	}

	session, err := telemetry.NewSession(telemetry.SessionConfig{
		Writer:       writer,
		BatchSize:    cfg.GetBatchSize(),
		SampleRateHz: cfg.GetSampleRateHz(),
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	// Create a wait group for the transport, HTTP server, and timer
	// routines. The inner cancel lets any of them stop the run.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	switch transport {
	case "pcap":
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			err := gateway.ReplayPCAPFile(ctx, *replayFile, gateway.ReplayConfig{
				UDPPort:         *replayPort,
				Realtime:        *replayRealtime,
				SpeedMultiplier: *replaySpeed,
				Stats:           gateway.NewPacketStats(),
				Handler:         session,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("replay failed: %v", err)
			}
		}()
	case "udp":
		listener := gateway.NewUDPListener(gateway.UDPListenerConfig{
			Address:     cfg.GetUDPListen(),
			LogInterval: cfg.GetLogInterval(),
			Stats:       gateway.NewPacketStats(),
			Handler:     session,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP gateway failed: %v", err)
			}
		}()
	default:
		if err := m.Initialize(); err != nil {
			log.Fatalf("Failed to initialize device: %v", err)
		}

		// run the monitor routine to manage IO on the stream port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor stream port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		// subscribe to stream fragments and feed them to the session
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, frags := m.Subscribe()
			defer m.Unsubscribe(id)
			for {
				select {
				case frag := <-frags:
					if err := session.HandleFragment(frag.Data, frag.ReceivedAt); err != nil {
						if errors.Is(err, telemetry.ErrSessionClosed) {
							return
						}
						log.Printf("failed to persist delivery: %v", err)
						cancel()
						return
					}
				case <-ctx.Done():
					log.Print("subscribe routine terminated")
					return
				}
			}
		}()
	}

	// streaming duration timer (0 = unlimited)
	if d := cfg.GetStreamingDuration(); d > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer := clk.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C():
				log.Printf("streaming duration %v elapsed, stopping", d)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	// HTTP server goroutine
	if addr := cfg.GetListenAddr(); addr != "" {
		apiServer := api.NewServer(m, database, session, cfg)
		mux := apiServer.ServeMux()

		// mount the admin debugging routes
		if database != nil {
			database.AttachAdminRoutes(mux)
		}
		if m != nil {
			m.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			// Start server in a goroutine so it doesn't block
			go func() {
				log.Printf("HTTP server listening on %s", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			// Wait for context cancellation to shut down server
			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}

			log.Printf("HTTP server routine stopped")
		}()
	}

	// Wait for all goroutines to finish
	wg.Wait()

	// Stop the device stream before draining so the summary reflects a
	// quiesced port. Best effort: the device may already be gone.
	if m != nil {
		if err := m.SendCommand(streammux.CommandStop); err != nil {
			log.Printf("failed to send stop command: %v", err)
		}
	}

	if err := session.Drain(); err != nil {
		log.Printf("failed to drain session: %v", err)
	}
	if err := csvW.Close(); err != nil {
		log.Printf("failed to close CSV recording: %v", err)
	}

	sum := session.Summary()

	if database != nil && dbSessionID != "" {
		if err := database.FinishSession(dbSessionID, clk.Now(), sum); err != nil {
			log.Printf("failed to finish session row: %v", err)
		}
	}

	sw := &recorder.SummaryWriter{FS: filesystem, Timezone: cfg.GetSummaryTimezone()}
	if rendered, err := sw.Render(sum); err != nil {
		log.Printf("failed to render summary: %v", err)
	} else {
		fmt.Print(rendered)
	}
	if *writeSummary {
		summaryPath := recorder.SummaryPath(outPath)
		if err := sw.Write(summaryPath, sum); err != nil {
			log.Printf("failed to write summary %s: %v", summaryPath, err)
		} else {
			log.Printf("summary written to %s", summaryPath)
		}
	}

	log.Printf("Graceful shutdown complete")
}
