package store

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Steps apply in order inside a
// transaction each; the schema_migrations table records what has run, so
// opening an old database upgrades it in place.
type migration struct {
	Version int
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		SQL: `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			command TEXT NOT NULL,
			volume TEXT NOT NULL,
			surface TEXT NOT NULL,
			threads INTEGER NOT NULL,
			run_parallel INTEGER NOT NULL DEFAULT 1,
			import_usec INTEGER NOT NULL DEFAULT 0,
			fuse_usec INTEGER NOT NULL DEFAULT 0,
			connect_usec INTEGER NOT NULL DEFAULT 0,
			export_usec INTEGER NOT NULL DEFAULT 0,
			wall_usec INTEGER NOT NULL DEFAULT 0,
			output TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
		`,
	},
	{
		// Kernel identity and host fingerprint, so scaling numbers from
		// different machines and kernel builds stay tellable apart.
		Version: 2,
		SQL: `
		ALTER TABLE runs ADD COLUMN kernel_version TEXT NOT NULL DEFAULT '';
		ALTER TABLE runs ADD COLUMN host TEXT NOT NULL DEFAULT '';
		`,
	},
}

// applyMigrations brings the schema up to date and reports how many steps
// ran.
func applyMigrations(db *sql.DB) (int, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func applyOne(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("migration %d: recording version: %w", m.Version, err)
	}
	return tx.Commit()
}

// schemaVersion returns the highest applied migration version, 0 for a
// fresh database.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
