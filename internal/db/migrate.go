package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode switches getMigrationsFS to read migration files from the
// working tree instead of the compiled-in copies, so a migration can be
// iterated on without rebuilding.
var DevMode = os.Getenv("NPGLINK_DEV") != ""

// getMigrationsFS returns the migrations filesystem rooted at the
// directory containing the .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// withMigrate builds a migrate instance over the shared connection and
// hands it to fn. The instance is never closed: closing it would close
// the underlying *sql.DB, so it is left for the garbage collector.
func (db *DB) withMigrate(migrations fs.FS, fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("failed to open migrations source: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	return fn(m)
}

// migrateLogger forwards migrate's progress lines to the standard logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// MigrateUp applies all pending migrations. A database already at the
// latest version is not an error.
func (db *DB) MigrateUp(migrations fs.FS) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrations fs.FS) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrateTo migrates up or down to a specific version.
func (db *DB) MigrateTo(migrations fs.FS, version uint) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		return nil
	})
}

// MigrateForce overwrites the recorded version without running any
// migrations. Recovery tool for dirty state only.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force migration to version %d failed: %w", version, err)
		}
		return nil
	})
}

// MigrateVersion returns the current migration version and dirty state.
// A database with no applied migrations reports version 0, clean.
func (db *DB) MigrateVersion(migrations fs.FS) (version uint, dirty bool, err error) {
	err = db.withMigrate(migrations, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return verr
	})
	return version, dirty, err
}

func (db *DB) ensureSchemaMigrationsTable() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	return err
}

// BaselineAtVersion records a migration version without running any
// migrations, for databases whose schema was created before migrations
// were introduced. Fails if any version is already recorded.
func (db *DB) BaselineAtVersion(version uint) error {
	if err := db.ensureSchemaMigrationsTable(); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("failed to check existing migrations: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("database already has migrations applied, cannot baseline")
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version); err != nil {
		return fmt.Errorf("failed to insert baseline version: %w", err)
	}

	log.Printf("Database baselined at version %d", version)
	return nil
}

// MigrationStatus summarizes the schema state for the migrate CLI.
type MigrationStatus struct {
	Version     uint
	Dirty       bool
	TableExists bool
}

// GetMigrationStatus reports the current version, dirty flag, and whether
// the schema_migrations bookkeeping table exists at all.
func (db *DB) GetMigrationStatus(migrations fs.FS) (MigrationStatus, error) {
	var status MigrationStatus

	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		return status, fmt.Errorf("failed to get migration version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty

	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&status.TableExists)
	if err != nil {
		return status, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	return status, nil
}

// GetLatestMigrationVersion returns the highest version present in the
// migrations filesystem. Files follow the 000001_name.up.sql pattern.
func GetLatestMigrationVersion(migrations fs.FS) (uint, error) {
	entries, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations filesystem: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		var version uint
		if _, err := fmt.Sscanf(entry, "%d_", &version); err == nil && version > maxVersion {
			maxVersion = version
		}
	}

	if maxVersion == 0 {
		return 0, fmt.Errorf("could not determine latest migration version")
	}
	return maxVersion, nil
}

// CheckAndPromptMigrations compares the database version against the
// latest available migration and reports what, if anything, the operator
// must do. Returns true when the caller should refuse to run.
func (db *DB) CheckAndPromptMigrations(migrations fs.FS) (bool, error) {
	current, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		return false, fmt.Errorf("failed to get current migration version: %w", err)
	}

	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		return false, fmt.Errorf("failed to get latest migration version: %w", err)
	}

	switch {
	case dirty:
		return true, fmt.Errorf("database is in a dirty state (version %d). Run 'npglink migrate status' to diagnose", current)
	case current > latest:
		return true, fmt.Errorf("database version (%d) is ahead of latest migration (%d). This should not happen", current, latest)
	case current == latest:
		return false, nil
	}

	log.Printf("Database schema version mismatch detected")
	log.Printf("   Current database version: %d", current)
	log.Printf("   Latest available version: %d", latest)
	log.Printf("   Outstanding migrations: %d", latest-current)
	log.Printf("To apply them, run: npglink migrate up")

	return true, fmt.Errorf("database schema is out of date (version %d, need %d). Please run migrations", current, latest)
}
