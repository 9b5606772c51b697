// Package format recognizes the backup layouts produced by WordPress backup
// plugins and knows where each layout keeps its database and content.
package format

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/importerr"
)

// Adapter handles one backup layout. Implementations are stateless.
type Adapter interface {
	// Name is the identifier used on the command line and in history.
	Name() string
	// Validate inspects the listing and small metadata members only. It
	// records why it rejected the archive in diag instead of returning an error.
	Validate(a *archive.Archive, diag *Diagnostics) bool
	// Extract unpacks the archive into the sandbox and reports what it wrote.
	Extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error)
	// LocateDatabase finds the SQL payload under an extracted root.
	LocateDatabase(root string) (DatabaseLocation, error)
	// LocateContent finds the wp-content directory under an extracted root.
	LocateContent(root string) (string, error)
	// Dependencies lists external commands the adapter needs.
	Dependencies() []string
}

// DatabaseLocation is either a single dump file or a directory of per-table
// dumps that must be consolidated first.
type DatabaseLocation struct {
	File      string
	Dir       string
	Pattern   string
	MinTables int
}

// IsDirectory reports whether the location needs consolidation.
func (l DatabaseLocation) IsDirectory() bool { return l.File == "" && l.Dir != "" }

func (l DatabaseLocation) String() string {
	if l.IsDirectory() {
		return filepath.Join(l.Dir, l.Pattern)
	}
	return l.File
}

// Rejection records why one adapter declined an archive.
type Rejection struct {
	Adapter string
	Reason  string
}

func (r Rejection) String() string { return r.Adapter + ": " + r.Reason }

// Diagnostics collects adapter rejections for a single run.
type Diagnostics struct {
	rejections []Rejection
}

// Reject records a rejection.
func (d *Diagnostics) Reject(adapter, format string, args ...any) {
	d.rejections = append(d.rejections, Rejection{Adapter: adapter, Reason: fmt.Sprintf(format, args...)})
}

// Rejections returns the recorded rejections in order.
func (d *Diagnostics) Rejections() []Rejection {
	out := make([]Rejection, len(d.rejections))
	copy(out, d.rejections)
	return out
}

// Reasons renders every rejection as "adapter: reason".
func (d *Diagnostics) Reasons() []string {
	out := make([]string, 0, len(d.rejections))
	for _, r := range d.rejections {
		out = append(out, r.String())
	}
	return out
}

// extract is the unpack step shared by every adapter.
func extract(ctx context.Context, a *archive.Archive, sandbox string, opts archive.ExtractOptions) (*archive.ExtractReport, error) {
	return a.Extract(ctx, sandbox, opts)
}

// singleDump returns the first file matching pattern under root, in byte order.
func singleDump(root, pattern, adapter string) (DatabaseLocation, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return DatabaseLocation{}, fmt.Errorf("glob %s: %w", pattern, err)
	}
	var files []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return DatabaseLocation{}, importerr.Newf(importerr.Discovery, "locate database",
			"%s: no database dump matching %s", adapter, pattern)
	}
	sort.Strings(files)
	return DatabaseLocation{File: files[0]}, nil
}

// dumpDir verifies dir holds at least minTables files matching pattern.
func dumpDir(dir, pattern string, minTables int, adapter string) (DatabaseLocation, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return DatabaseLocation{}, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return DatabaseLocation{}, importerr.Newf(importerr.Discovery, "locate database",
			"%s: no per-table dumps matching %s in %s", adapter, pattern, dir)
	}
	return DatabaseLocation{Dir: dir, Pattern: pattern, MinTables: minTables}, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
