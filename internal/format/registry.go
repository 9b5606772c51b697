package format

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/importerr"
)

// Registry holds adapters in detection priority order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry returns a registry that tries adapters in the given order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Default returns the built-in adapters in priority order.
func Default() *Registry {
	return NewRegistry(
		Native{},
		Duplicator{},
		Jetpack{},
		SolidNextgen{},
		SolidLegacy{},
	)
}

// Adapters returns the registered adapters in priority order.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Names returns the registered adapter names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Get returns the adapter with the given name. It is the operator override
// that skips detection entirely.
func (r *Registry) Get(name string) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, importerr.Newf(importerr.Validation, "select format",
		"unknown format %q", name).
		WithRemediation(fmt.Sprintf("choose one of: %s", strings.Join(r.Names(), ", ")))
}

// Detect returns the first adapter that accepts the archive. When none
// does, the Validation error carries every adapter's reason.
func (r *Registry) Detect(a *archive.Archive, diag *Diagnostics) (Adapter, error) {
	if a.Kind() == archive.KindUnknown {
		diag.Reject("container", "unrecognized container format")
	}
	for _, ad := range r.adapters {
		if ad.Validate(a, diag) {
			return ad, nil
		}
	}
	return nil, importerr.Newf(importerr.Validation, "detect format",
		"no format recognized %s", a.Path()).
		WithReasons(diag.Reasons()...).
		WithRemediation("pass --format to force a format if the archive is known to be valid")
}
