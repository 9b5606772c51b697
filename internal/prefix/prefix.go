// Package prefix infers the table prefix of an imported WordPress database.
package prefix

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/BadgerOps/siteport/internal/wpcli"
)

// TableSource is the read-only view of a database the resolver needs.
type TableSource interface {
	Tables(ctx context.Context) ([]string, error)
	Query(ctx context.Context, sql string) (string, error)
}

// Method records how a prefix was determined.
type Method string

const (
	MethodSingle     Method = "single"
	MethodMultisite  Method = "multisite"
	MethodConfigured Method = "configured"
)

// Resolution is the outcome of prefix inference.
type Resolution struct {
	Prefix     string
	Method     Method
	Candidates []string
}

// Resolver determines the prefix of the installation held in a database.
type Resolver interface {
	Resolve(ctx context.Context, src TableSource, configured string) (Resolution, error)
}

// Heuristic finds every P with P+"options", P+"posts" and P+"users" present.
type Heuristic struct{}

var _ Resolver = Heuristic{}

var (
	coreTables    = []string{"options", "posts", "users"}
	networkTables = []string{"blogs", "sitemeta"}
)

// Candidates returns every prefix for which all core tables exist, shortest
// first and then lexically.
func Candidates(tables []string) []string {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}

	var out []string
	for _, t := range tables {
		if !strings.HasSuffix(t, "options") {
			continue
		}
		cand := strings.TrimSuffix(t, "options")
		if hasAll(set, cand, coreTables) {
			out = append(out, cand)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return dedupe(out)
}

// Resolve applies the heuristic. Several candidates are accepted only when
// the shortest carries the network tables of a multisite installation.
func (Heuristic) Resolve(ctx context.Context, src TableSource, configured string) (Resolution, error) {
	tables, err := src.Tables(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("listing tables: %w", err)
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}

	cands := Candidates(tables)
	switch len(cands) {
	case 1:
		return Resolution{Prefix: cands[0], Method: MethodSingle, Candidates: cands}, nil
	case 0:
		return verifyConfigured(ctx, src, configured)
	}

	base := cands[0]
	if hasAll(set, base, networkTables) {
		return Resolution{Prefix: base, Method: MethodMultisite, Candidates: cands}, nil
	}

	reasons := make([]string, 0, len(cands))
	for _, c := range cands {
		reasons = append(reasons, fmt.Sprintf("candidate prefix %q", c))
	}
	return Resolution{Candidates: cands}, importerr.Newf(importerr.Ambiguity, "resolve table prefix",
		"database holds %d unrelated installations", len(cands)).
		WithReasons(reasons...).
		WithRemediation("export only one site's tables from the source and import again")
}

// verifyConfigured falls back to the prefix already in wp-config.php. Only
// the options table is checked here.
func verifyConfigured(ctx context.Context, src TableSource, configured string) (Resolution, error) {
	ident, err := wpcli.QuoteIdent(configured + "options")
	if err != nil {
		return Resolution{}, importerr.New(importerr.Discovery, "resolve table prefix",
			fmt.Errorf("configured prefix %q: %w", configured, err))
	}
	if _, err := src.Query(ctx, "SELECT 1 FROM "+ident+" LIMIT 1"); err != nil {
		return Resolution{}, importerr.New(importerr.Discovery, "resolve table prefix",
			fmt.Errorf("no complete installation found and %s is not queryable: %w", ident, err)).
			WithRemediation("check that the archive's database dump contains WordPress core tables")
	}
	return Resolution{Prefix: configured, Method: MethodConfigured}, nil
}

func hasAll(set map[string]bool, prefix string, suffixes []string) bool {
	for _, s := range suffixes {
		if !set[prefix+s] {
			return false
		}
	}
	return true
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
