package format

import (
	"context"

	"github.com/BadgerOps/siteport/internal/archive"
)

const (
	duplicatorInstaller = "installer.php"
	duplicatorDump      = "dup-installer/dup-database__*.sql"
)

// Duplicator handles Duplicator package archives.
type Duplicator struct{}

var _ Adapter = (*Duplicator)(nil)

func (Duplicator) Name() string { return "duplicator" }

func (d Duplicator) Validate(a *archive.Archive, diag *Diagnostics) bool {
	if a.Has(duplicatorInstaller) || len(a.Glob(duplicatorDump)) > 0 {
		return true
	}
	diag.Reject(d.Name(), "neither %s at root nor a dump matching %s", duplicatorInstaller, duplicatorDump)
	return false
}

func (Duplicator) Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return extract(ctx, a, sandbox, opts)
}

func (d Duplicator) LocateDatabase(root string) (DatabaseLocation, error) {
	return singleDump(root, duplicatorDump, d.Name())
}

func (Duplicator) LocateContent(root string) (string, error) { return BestContentDir(root) }

func (Duplicator) Dependencies() []string { return []string{"wp"} }
