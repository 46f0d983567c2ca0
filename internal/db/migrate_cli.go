package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand dispatches the 'migrate' subcommand.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to get migrations filesystem: %v", err)
	}

	// Open without schema initialization; the migrations own the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		handleMigrateUp(database, migrations)

	case "down":
		handleMigrateDown(database, migrations)

	case "status":
		handleMigrateStatus(database, migrations)

	case "check":
		handleMigrateCheck(database, migrations)

	case "version":
		requireVersionArg(args, "npglink migrate version <version_number>")
		handleMigrateVersion(database, migrations, args[1])

	case "force":
		requireVersionArg(args, "npglink migrate force <version_number>")
		handleMigrateForce(database, migrations, args[1])

	case "baseline":
		requireVersionArg(args, "npglink migrate baseline <version_number>")
		handleMigrateBaseline(database, args[1])

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func requireVersionArg(args []string, usage string) {
	if len(args) < 2 {
		log.Fatalf("Usage: %s", usage)
	}
}

// parseVersion parses a version argument, exiting on malformed input.
func parseVersion(versionStr string) uint {
	v, err := strconv.ParseUint(versionStr, 10, 32)
	if err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}
	return uint(v)
}

// logVersion prints the post-action schema version.
func logVersion(database *DB, migrations fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrations)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateUp(database *DB, migrations fs.FS) {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("All migrations applied successfully")
	logVersion(database, migrations)
}

func handleMigrateDown(database *DB, migrations fs.FS) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrations); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("Migration rolled back successfully")
	logVersion(database, migrations)
}

func handleMigrateStatus(database *DB, migrations fs.FS) {
	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to get latest migration version: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", status.Version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", status.Dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status.TableExists)

	if status.Dirty {
		fmt.Println("\nWARNING: Database is in a dirty state!")
		fmt.Println("A migration failed mid-execution. You may need to:")
		fmt.Println("  1. Inspect the database manually")
		fmt.Println("  2. Fix any issues")
		fmt.Println("  3. Run: npglink migrate force <version>")
	}
}

// handleMigrateCheck exits nonzero when the schema needs operator action,
// for use in deploy scripts before starting the daemon.
func handleMigrateCheck(database *DB, migrations fs.FS) {
	refuse, err := database.CheckAndPromptMigrations(migrations)
	if refuse {
		log.Fatalf("Schema check: %v", err)
	}
	if err != nil {
		log.Fatalf("Schema check failed: %v", err)
	}
	log.Println("Database schema is up to date")
}

func handleMigrateVersion(database *DB, migrations fs.FS, versionStr string) {
	target := parseVersion(versionStr)

	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(migrations, target); err != nil {
		log.Fatalf("Migration to version %d failed: %v", target, err)
	}
	log.Printf("Migrated to version %d successfully", target)
}

func handleMigrateForce(database *DB, migrations fs.FS, versionStr string) {
	force := parseVersion(versionStr)

	fmt.Printf("WARNING: Forcing migration version to %d\n", force)
	fmt.Println("This should only be used to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := database.MigrateForce(migrations, int(force)); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("Migration version forced to %d", force)
}

func handleMigrateBaseline(database *DB, versionStr string) {
	baseline := parseVersion(versionStr)

	log.Printf("Baselining database at version %d...", baseline)
	if err := database.BaselineAtVersion(baseline); err != nil {
		log.Fatalf("Baseline failed: %v", err)
	}
	log.Printf("Database baselined at version %d", baseline)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: npglink migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  check           Exit nonzero if the schema is dirty or out of date")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  baseline <N>    Set migration version to N without running migrations")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  npglink migrate up")
	fmt.Println("  npglink migrate down")
	fmt.Println("  npglink migrate status")
	fmt.Println("  npglink migrate version 1")
	fmt.Println("  npglink migrate force 2")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>    Path to database file (default: npglink.db)")
}
