package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed import history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent across calls
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// ImportRun Operations
// ============================================================================

const runColumns = `
	id, archive, archive_size, site_path, format, state, status,
	error_kind, error_message, sandbox_path, snapshot_path,
	db_backup_path, content_backup_path, table_prefix,
	tables_before, tables_after, restore_attempted, restore_error,
	multisite, files_extracted, start_time, end_time
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, run *ImportRun) error {
	return row.Scan(
		&run.ID, &run.Archive, &run.ArchiveSize, &run.SitePath, &run.Format,
		&run.State, &run.Status, &run.ErrorKind, &run.ErrorMessage,
		&run.SandboxPath, &run.SnapshotPath, &run.DBBackupPath,
		&run.ContentBackupPath, &run.TablePrefix, &run.TablesBefore,
		&run.TablesAfter, &run.RestoreAttempted, &run.RestoreError,
		&run.Multisite, &run.FilesExtracted, &run.StartTime, &run.EndTime,
	)
}

// CreateRun inserts a new ImportRun. The caller assigns the ID.
func (s *Store) CreateRun(run *ImportRun) error {
	if run.ID == "" {
		return fmt.Errorf("import run has no id")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	const query = `
		INSERT INTO import_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(
		query,
		run.ID, run.Archive, run.ArchiveSize, run.SitePath, run.Format,
		run.State, run.Status, run.ErrorKind, run.ErrorMessage,
		run.SandboxPath, run.SnapshotPath, run.DBBackupPath,
		run.ContentBackupPath, run.TablePrefix, run.TablesBefore,
		run.TablesAfter, run.RestoreAttempted, run.RestoreError,
		run.Multisite, run.FilesExtracted, run.StartTime, run.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing ImportRun by ID
func (s *Store) UpdateRun(run *ImportRun) error {
	const query = `
		UPDATE import_runs SET
			archive = ?, archive_size = ?, site_path = ?, format = ?, state = ?,
			status = ?, error_kind = ?, error_message = ?, sandbox_path = ?,
			snapshot_path = ?, db_backup_path = ?, content_backup_path = ?,
			table_prefix = ?, tables_before = ?, tables_after = ?,
			restore_attempted = ?, restore_error = ?, multisite = ?,
			files_extracted = ?, start_time = ?, end_time = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Archive, run.ArchiveSize, run.SitePath, run.Format, run.State,
		run.Status, run.ErrorKind, run.ErrorMessage, run.SandboxPath,
		run.SnapshotPath, run.DBBackupPath, run.ContentBackupPath,
		run.TablePrefix, run.TablesBefore, run.TablesAfter,
		run.RestoreAttempted, run.RestoreError, run.Multisite,
		run.FilesExtracted, run.StartTime, run.EndTime,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("import run not found: %s", run.ID)
	}

	return nil
}

// GetRun retrieves an ImportRun by ID
func (s *Store) GetRun(id string) (*ImportRun, error) {
	const query = `SELECT ` + runColumns + ` FROM import_runs WHERE id = ?`

	run := &ImportRun{}
	if err := scanRun(s.db.QueryRow(query, id), run); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("import run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query import run: %w", err)
	}

	return run, nil
}

// ResolveRunID expands a unique ID prefix to the full run ID
func (s *Store) ResolveRunID(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("run ID is required")
	}

	rows, err := s.db.Query(`SELECT id FROM import_runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to query import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating run IDs: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("import run not found: %s", prefix)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("run ID prefix %q is ambiguous", prefix)
}

// ListRuns retrieves ImportRuns newest first, optionally filtered by status
func (s *Store) ListRuns(status string, limit int) ([]ImportRun, error) {
	query := `SELECT ` + runColumns + ` FROM import_runs`
	var args []interface{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY start_time DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []ImportRun
	for rows.Next() {
		run := ImportRun{}
		if err := scanRun(rows, &run); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import runs: %w", err)
	}

	return runs, nil
}

// DeleteRun removes an ImportRun and its diagnostics
func (s *Store) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM run_diagnostics WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run diagnostics: %w", err)
	}

	result, err := tx.Exec("DELETE FROM import_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete import run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("import run not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ============================================================================
// Diagnostic Operations
// ============================================================================

// AddDiagnostic inserts a Diagnostic and sets its ID
func (s *Store) AddDiagnostic(d *Diagnostic) error {
	const query = `
		INSERT INTO run_diagnostics (run_id, kind, source, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query, d.RunID, d.Kind, d.Source, d.Message, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert diagnostic: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	d.ID = id
	return nil
}

// ListDiagnostics retrieves the diagnostics of a run in insertion order
func (s *Store) ListDiagnostics(runID string) ([]Diagnostic, error) {
	const query = `
		SELECT id, run_id, kind, source, message, created_at
		FROM run_diagnostics WHERE run_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		d := Diagnostic{}
		if err := rows.Scan(&d.ID, &d.RunID, &d.Kind, &d.Source, &d.Message, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}

	return diags, nil
}
