package format

import (
	"context"
	"path/filepath"

	"github.com/BadgerOps/siteport/internal/archive"
)

const (
	jetpackMetadata  = "meta.json"
	jetpackSQLDir    = "sql"
	jetpackMinTables = 3
)

// Jetpack handles Jetpack Backup (VaultPress) downloads: a metadata file and
// one dump per table under sql/.
type Jetpack struct{}

var _ Adapter = (*Jetpack)(nil)

func (Jetpack) Name() string { return "jetpack" }

func (j Jetpack) Validate(a *archive.Archive, diag *Diagnostics) bool {
	if !a.Has(jetpackMetadata) {
		diag.Reject(j.Name(), "no %s at archive root", jetpackMetadata)
		return false
	}
	if len(a.Glob(jetpackSQLDir+"/*options.sql")) == 0 {
		diag.Reject(j.Name(), "no %s/<prefix>options.sql dump", jetpackSQLDir)
		return false
	}
	return true
}

func (Jetpack) Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return extract(ctx, a, sandbox, opts)
}

func (j Jetpack) LocateDatabase(root string) (DatabaseLocation, error) {
	return dumpDir(filepath.Join(root, jetpackSQLDir), "*.sql", jetpackMinTables, j.Name())
}

func (j Jetpack) LocateContent(root string) (string, error) { return rootContentDir(root, j.Name()) }

func (Jetpack) Dependencies() []string { return []string{"wp"} }
