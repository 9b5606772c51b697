package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BadgerOps/siteport/internal/content"
	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
)

const backupStamp = "20060102-150405.000"

// backup persists a gzip-compressed database export and a full copy of the
// destination content tree. Nothing destructive may start before both exist.
func (e *Engine) backup(ctx context.Context, run *Run) error {
	run.Tracker.SetPhase(PhaseBackingUp, e.opts.BackupDir)

	if err := os.MkdirAll(e.opts.BackupDir, 0o700); err != nil {
		return importerr.New(importerr.Snapshot, "pre-import backup", fmt.Errorf("creating backup dir: %w", err))
	}
	stamp := time.Now().Format(backupStamp)

	dbPath := filepath.Join(e.opts.BackupDir, "db-"+stamp+".sql.gz")
	size, err := e.backupDatabase(ctx, run, dbPath)
	if err != nil {
		return importerr.New(importerr.Snapshot, "pre-import database backup", err).
			WithRemediation("the destination was not modified; check that wp db export works")
	}
	run.DBBackup = dbPath
	e.logger.Info("database backup written", "path", dbPath, "size", humanize.Bytes(uint64(size)))

	contentPath := filepath.Join(e.opts.BackupDir, "wp-content-"+stamp)
	if _, err := os.Stat(e.opts.ContentPath); os.IsNotExist(err) {
		run.warn("backup", "destination has no content directory, nothing to back up")
		return nil
	}
	n, err := content.CopyTree(e.opts.ContentPath, contentPath)
	if err != nil {
		_ = os.RemoveAll(contentPath)
		return importerr.New(importerr.Snapshot, "pre-import content backup", err).
			WithRemediation("the destination was not modified; free space in import.backup_dir")
	}
	run.ContentBackup = contentPath
	e.logger.Info("content backup written", "path", contentPath, "size", humanize.Bytes(uint64(n)))
	return nil
}

// backupDatabase exports the live database into the sandbox and compresses
// it to dest. The uncompressed export is removed afterwards.
func (e *Engine) backupDatabase(ctx context.Context, run *Run, dest string) (int64, error) {
	raw := filepath.Join(run.Sandbox, "pre-import-export.sql")
	if err := e.exec.DBExport(ctx, raw); err != nil {
		return 0, fmt.Errorf("exporting database: %w", err)
	}
	defer func() { _ = os.Remove(raw) }()

	n, err := gzipFile(raw, dest)
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}

// gzipFile compresses src into dest and returns the compressed size.
func gzipFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening export: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating backup: %w", err)
	}
	defer func() { _ = out.Close() }()

	zw, err := gzip.NewWriterLevel(out, gzip.BestSpeed)
	if err != nil {
		return 0, fmt.Errorf("creating gzip writer: %w", err)
	}
	zw.Name = filepath.Base(src)
	if _, err := io.Copy(zw, in); err != nil {
		return 0, fmt.Errorf("compressing backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finishing backup: %w", err)
	}
	if err := out.Sync(); err != nil {
		return 0, fmt.Errorf("syncing backup: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat backup: %w", err)
	}
	return info.Size(), nil
}

// restoreContent mirrors the pre-import content backup back onto the
// destination after a failed replacement.
func (e *Engine) restoreContent(run *Run) error {
	if run.ContentBackup == "" {
		// The destination had no content tree before the import.
		if err := os.RemoveAll(e.opts.ContentPath); err != nil {
			return fmt.Errorf("removing partial content: %w", err)
		}
		run.ContentRestored = true
		return nil
	}
	report, err := content.Mirror(run.ContentBackup, e.opts.ContentPath, e.rules())
	if err != nil {
		return fmt.Errorf("restoring content from %s: %w", run.ContentBackup, err)
	}
	run.ContentRestored = true
	e.logger.Warn("content restored from backup", "backup", run.ContentBackup,
		"files", report.Copied, "deleted", report.Deleted)
	return nil
}
