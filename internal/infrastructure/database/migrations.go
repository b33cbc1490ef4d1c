package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds one directory of migration files per dialect
// ("sqlite", "postgres"). The migrations package sets it from its embedded
// files; a nil MigrationsFS means there is nothing to apply.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS holding the dialect
// directories. Set it to "." when they sit at the root.
var MigrationsDir = "migrations"

// Migration is one schema change, read from the file pair
// YYYYMMDD_HHMMSS_name.up.sql / YYYYMMDD_HHMMSS_name.down.sql.
// The down file is optional.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationState pairs a migration with its record in the database.
type MigrationState struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

const (
	createMigrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`
	selectMigrations = "SELECT version, applied_at FROM schema_migrations"
	insertMigration  = "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"
	deleteMigration  = "DELETE FROM schema_migrations WHERE version = ?"
)

// Migrate applies every pending migration of the driver's dialect, oldest
// first. Each migration commits on its own, so a failure leaves the earlier
// ones in place and a rerun continues from the one that failed.
func (db *DB) Migrate(ctx context.Context) error {
	states, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, s := range states {
		if s.Applied {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := db.runMigration(ctx, s.UpSQL, insertMigration, s.Version, now); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", s.Version, s.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the most recently applied migration.
//
// Returns:
//   - *Migration: The reverted migration, nil when none was applied
//   - error: ErrNoDownMigration when it ships without a down script, or the
//     failure of the rollback itself
func (db *DB) MigrateDown(ctx context.Context) (*Migration, error) {
	states, err := db.MigrationStatus(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(states) - 1; i >= 0; i-- {
		s := states[i]
		if !s.Applied {
			continue
		}
		if s.DownSQL == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoDownMigration, s.Version)
		}
		if err := db.runMigration(ctx, s.DownSQL, deleteMigration, s.Version); err != nil {
			return nil, fmt.Errorf("reverting migration %s (%s): %w", s.Version, s.Name, err)
		}
		return &s.Migration, nil
	}
	return nil, nil
}

// MigrationStatus lists the dialect's migrations in version order and
// whether each one has been applied. It creates the bookkeeping table when
// missing.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := loadMigrations(db.Dialect())
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, len(migrations))
	for i, m := range migrations {
		at, ok := applied[m.Version]
		states[i] = MigrationState{Migration: m, Applied: ok, AppliedAt: at}
	}
	return states, nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, selectMigrations)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version, at string
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[version], _ = time.Parse(time.RFC3339, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

// runMigration executes script and the bookkeeping statement in one
// transaction.
func (db *DB) runMigration(ctx context.Context, script, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(record), args...); err != nil {
		return fmt.Errorf("updating schema_migrations: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the migration files of one dialect. A missing
// directory yields no migrations.
func loadMigrations(dialect string) ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}

	dir := path.Join(MigrationsDir, dialect)
	entries, err := fs.ReadDir(MigrationsFS, dir)
	if err != nil {
		return nil, nil //nolint:nilerr // dialect without migrations
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		data, err := fs.ReadFile(MigrationsFS, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(data)
		} else {
			m.DownSQL = string(data)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s has no up script", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename splits "20240715_000000_telemetry_history.up.sql"
// into version "20240715_000000", name "telemetry_history" and direction.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return "", "", false, false
	}
	version = parts[0] + "_" + parts[1]
	name = base
	if len(parts) == 3 {
		name = parts[2]
	}
	return version, name, up, true
}
