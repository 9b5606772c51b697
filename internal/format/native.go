package format

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/importerr"
)

const (
	nativeMetadata = "siteport.json"
	nativeDump     = "database.sql"
)

// NativeMetadata is the descriptor written at the root of a siteport export.
type NativeMetadata struct {
	Version string `json:"version"`
	SiteURL string `json:"site_url,omitempty"`
	Created string `json:"created,omitempty"`
}

// Native handles archives produced by siteport itself.
type Native struct{}

var _ Adapter = (*Native)(nil)

func (Native) Name() string { return "native" }

func (n Native) Validate(a *archive.Archive, diag *Diagnostics) bool {
	if !a.Has(nativeMetadata) {
		diag.Reject(n.Name(), "no %s at archive root", nativeMetadata)
		return false
	}
	data, err := a.ReadMember(nativeMetadata, 64<<10)
	if err != nil {
		diag.Reject(n.Name(), "reading %s: %v", nativeMetadata, err)
		return false
	}
	var meta NativeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		diag.Reject(n.Name(), "parsing %s: %v", nativeMetadata, err)
		return false
	}
	if meta.Version == "" {
		diag.Reject(n.Name(), "%s has no version field", nativeMetadata)
		return false
	}
	if !a.Has(nativeDump) {
		diag.Reject(n.Name(), "no %s at archive root", nativeDump)
		return false
	}
	return true
}

func (Native) Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return extract(ctx, a, sandbox, opts)
}

func (n Native) LocateDatabase(root string) (DatabaseLocation, error) {
	p := filepath.Join(root, nativeDump)
	if !isFile(p) {
		return DatabaseLocation{}, importerr.Newf(importerr.Discovery, "locate database",
			"%s: %s missing after extraction", n.Name(), nativeDump)
	}
	return DatabaseLocation{File: p}, nil
}

func (Native) LocateContent(root string) (string, error) { return BestContentDir(root) }

func (Native) Dependencies() []string { return []string{"wp"} }
