package store

import (
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// schema lists every migration in order. Applied versions are never edited;
// changes go in a new entry.
var schema = []migration{
	{
		version: 1,
		name:    "import runs and diagnostics",
		sql: `
			CREATE TABLE import_runs (
				id TEXT PRIMARY KEY,
				archive TEXT NOT NULL,
				site_path TEXT NOT NULL,
				format TEXT,
				state TEXT,
				status TEXT NOT NULL DEFAULT 'running',
				error_kind TEXT,
				error_message TEXT,
				sandbox_path TEXT,
				snapshot_path TEXT,
				db_backup_path TEXT,
				content_backup_path TEXT,
				table_prefix TEXT,
				restore_attempted BOOLEAN NOT NULL DEFAULT 0,
				restore_error TEXT,
				start_time DATETIME NOT NULL,
				end_time DATETIME
			);

			CREATE INDEX idx_import_runs_start ON import_runs(start_time);

			CREATE TABLE run_diagnostics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES import_runs(id),
				kind TEXT NOT NULL,
				source TEXT,
				message TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);

			CREATE INDEX idx_run_diagnostics_run ON run_diagnostics(run_id);
		`,
	},
	{
		version: 2,
		name:    "archive size and table counts",
		sql: `
			ALTER TABLE import_runs ADD COLUMN archive_size INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE import_runs ADD COLUMN tables_before INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE import_runs ADD COLUMN tables_after INTEGER NOT NULL DEFAULT 0;
		`,
	},
	{
		version: 3,
		name:    "multisite marker and extracted file count",
		sql: `
			ALTER TABLE import_runs ADD COLUMN multisite BOOLEAN NOT NULL DEFAULT 0;
			ALTER TABLE import_runs ADD COLUMN files_extracted INTEGER NOT NULL DEFAULT 0;
		`,
	},
}

// migrate brings the database up to the latest schema version
func (s *Store) migrate() error {
	const bookkeeping = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(bookkeeping); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	pending := 0
	for _, m := range schema {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		s.logger.Debug("applied migration", "version", m.version, "name", m.name)
		pending++
	}
	if pending > 0 {
		s.logger.Info("history schema updated", "from", current, "to", schema[len(schema)-1].version)
	}

	return nil
}

// apply runs one migration and records it in the same transaction
func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
