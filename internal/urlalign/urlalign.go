// Package urlalign rewrites the source site's URLs to the destination's
// after a database import.
package urlalign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Pair is one search/replace operation.
type Pair struct {
	Old string
	New string
}

func (p Pair) String() string { return p.Old + " -> " + p.New }

// Variants expands a base URL pair into every form the old URL is stored
// in. Longer forms come first so a shorter pattern never rewrites part of a
// longer one. Duplicates and no-op pairs are dropped.
func Variants(oldURL, newURL string) []Pair {
	oldBase := strings.TrimRight(oldURL, "/")
	newBase := strings.TrimRight(newURL, "/")

	candidates := []Pair{
		{oldBase + "/", newBase + "/"},
		{oldBase, newBase},
		{oldURL, newURL},
		{jsonEscape(oldBase + "/"), jsonEscape(newBase + "/")},
		{jsonEscape(oldBase), jsonEscape(newBase)},
	}

	oldHost, newHost := hostPart(oldBase), hostPart(newBase)
	if oldHost != "" && newHost != "" {
		candidates = append(candidates,
			Pair{"//" + oldHost, "//" + newHost},
			Pair{oldHost, newHost},
		)
	}
	return dedupe(candidates)
}

// VariantsAll expands several base pairs, removing duplicates across them.
func VariantsAll(bases []Pair) []Pair {
	var all []Pair
	for _, b := range bases {
		all = append(all, Variants(b.Old, b.New)...)
	}
	return dedupe(all)
}

func jsonEscape(s string) string { return strings.ReplaceAll(s, "/", `\/`) }

// hostPart strips the scheme, leaving host and any path.
func hostPart(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[i+3:]
	}
	return strings.TrimPrefix(u, "//")
}

func dedupe(pairs []Pair) []Pair {
	seen := make(map[Pair]bool, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Old == "" || p.Old == p.New || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Executor is the subset of the wp tool alignment needs.
type Executor interface {
	SearchReplace(ctx context.Context, from, to string, network bool) error
	OptionGet(ctx context.Context, name string) (string, error)
	OptionUpdate(ctx context.Context, name, value string) error
}

// Canonical holds the destination's own siteurl and home options.
type Canonical struct {
	SiteURL string
	Home    string
}

// Capture reads the current siteurl and home options.
func Capture(ctx context.Context, exec Executor) (Canonical, error) {
	siteURL, err := exec.OptionGet(ctx, "siteurl")
	if err != nil {
		return Canonical{}, fmt.Errorf("reading siteurl: %w", err)
	}
	home, err := exec.OptionGet(ctx, "home")
	if err != nil {
		return Canonical{}, fmt.Errorf("reading home: %w", err)
	}
	return Canonical{SiteURL: siteURL, Home: home}, nil
}

// Options configures Align.
type Options struct {
	// Reduced skips bulk replacement and only resets siteurl and home.
	Reduced bool
	// Network applies every replacement across all sites of a multisite
	// installation.
	Network bool
	Logger  *slog.Logger
}

// Result reports what Align did.
type Result struct {
	Pairs   []Pair
	Applied int
	Skipped []Pair
	Network bool
}

// Align rewrites every variant of the source URLs, one executor call per
// pair, and then sets siteurl and home back to dest.
func Align(ctx context.Context, exec Executor, source, dest Canonical, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bases := []Pair{{source.SiteURL, dest.SiteURL}}
	if source.Home != "" && dest.Home != "" {
		bases = append(bases, Pair{source.Home, dest.Home})
	}
	res := &Result{Pairs: VariantsAll(bases), Network: opts.Network}

	if opts.Reduced {
		res.Skipped = res.Pairs
		names := make([]string, 0, len(res.Skipped))
		for _, p := range res.Skipped {
			names = append(names, p.String())
		}
		logger.Warn("search-replace skipped, stored URLs still point at the source site",
			"pairs", len(res.Skipped), "untouched", strings.Join(names, "; "))
	} else {
		for _, p := range res.Pairs {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			logger.Info("search-replace", "old", p.Old, "new", p.New, "network", opts.Network)
			if err := exec.SearchReplace(ctx, p.Old, p.New, opts.Network); err != nil {
				return res, fmt.Errorf("search-replace %q: %w", p.Old, err)
			}
			res.Applied++
		}
	}

	if err := exec.OptionUpdate(ctx, "siteurl", dest.SiteURL); err != nil {
		return res, fmt.Errorf("restoring siteurl: %w", err)
	}
	if err := exec.OptionUpdate(ctx, "home", dest.Home); err != nil {
		return res, fmt.Errorf("restoring home: %w", err)
	}
	return res, nil
}
