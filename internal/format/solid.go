package format

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/importerr"
)

const (
	legacyMarker     = "wp-content/uploads/backupbuddy_temp/*/backupbuddy_dat.php"
	nextgenDataDir   = "data"
	nextgenFilesDir  = "files"
	nextgenMinTables = 5
)

// SolidLegacy handles BackupBuddy archives, which stash the database dump
// under wp-content/uploads/backupbuddy_temp/<serial>/.
type SolidLegacy struct{}

var _ Adapter = (*SolidLegacy)(nil)

func (SolidLegacy) Name() string { return "solid-legacy" }

func (s SolidLegacy) Validate(a *archive.Archive, diag *Diagnostics) bool {
	markers := a.Glob(legacyMarker)
	if len(markers) == 0 {
		diag.Reject(s.Name(), "no marker matching %s", legacyMarker)
		return false
	}
	if len(a.Glob(path.Join(path.Dir(markers[0]), "*.sql"))) == 0 {
		diag.Reject(s.Name(), "marker %s has no sibling .sql dumps", markers[0])
		return false
	}
	return true
}

func (SolidLegacy) Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return extract(ctx, a, sandbox, opts)
}

func (s SolidLegacy) LocateDatabase(root string) (DatabaseLocation, error) {
	markers, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(legacyMarker)))
	if err != nil || len(markers) == 0 {
		return DatabaseLocation{}, importerr.Newf(importerr.Discovery, "locate database",
			"%s: backupbuddy_dat.php missing after extraction", s.Name())
	}
	return dumpDir(filepath.Dir(markers[0]), "*.sql", 1, s.Name())
}

func (s SolidLegacy) LocateContent(root string) (string, error) { return rootContentDir(root, s.Name()) }

func (SolidLegacy) Dependencies() []string { return []string{"wp"} }

// SolidNextgen handles Solid Backups (BackupBuddy 9+) archives with a data/
// directory of per-table dumps and the site files under files/.
type SolidNextgen struct{}

var _ Adapter = (*SolidNextgen)(nil)

func (SolidNextgen) Name() string { return "solid-nextgen" }

func (s SolidNextgen) Validate(a *archive.Archive, diag *Diagnostics) bool {
	dumps := a.Glob(nextgenDataDir + "/*.sql")
	if len(dumps) < nextgenMinTables {
		diag.Reject(s.Name(), "%s/ holds %d .sql dump(s), need at least %d", nextgenDataDir, len(dumps), nextgenMinTables)
		return false
	}
	if !a.HasDir(nextgenFilesDir) {
		diag.Reject(s.Name(), "no top-level %s/ directory", nextgenFilesDir)
		return false
	}
	return true
}

func (SolidNextgen) Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return extract(ctx, a, sandbox, opts)
}

func (s SolidNextgen) LocateDatabase(root string) (DatabaseLocation, error) {
	return dumpDir(filepath.Join(root, nextgenDataDir), "*.sql", nextgenMinTables, s.Name())
}

func (s SolidNextgen) LocateContent(root string) (string, error) {
	files := filepath.Join(root, nextgenFilesDir)
	direct := filepath.Join(files, "wp-content")
	if isDir(direct) {
		return direct, nil
	}
	if !isDir(files) {
		return "", importerr.Newf(importerr.Discovery, "locate content",
			"%s: %s/ missing after extraction", s.Name(), nextgenFilesDir)
	}
	return BestContentDir(files)
}

func (SolidNextgen) Dependencies() []string { return []string{"wp"} }

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
