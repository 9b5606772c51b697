package engine

import (
	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/format"
	"github.com/BadgerOps/siteport/internal/importerr"
)

// Inspection describes an archive without touching any destination.
type Inspection struct {
	Archive    *archive.Archive
	Unsafe     error // member-path violations, nil when clean
	Adapter    format.Adapter
	DetectErr  error
	Rejections []format.Rejection
	// Forced is set when the adapter was named by the operator. Mismatches
	// then lists the signature checks it fails; they are not fatal.
	Forced     bool
	Mismatches []string
}

// Inspect sniffs the archive, validates member paths and runs detection,
// or resolves a forced format without detecting. Only a failure to open the
// archive is returned as an error; findings are reported in the Inspection.
func Inspect(reg *format.Registry, path, forced string) (*Inspection, error) {
	if reg == nil {
		reg = format.Default()
	}
	a, err := archive.Open(path)
	if err != nil {
		return nil, importerr.New(importerr.Extraction, "open archive", err)
	}

	in := &Inspection{Archive: a}
	if a.Kind() != archive.KindUnknown {
		in.Unsafe = a.CheckMembers()
	}

	diag := &format.Diagnostics{}
	if forced != "" {
		adapter, err := reg.Get(forced)
		if err != nil {
			in.DetectErr = err
			return in, nil
		}
		in.Adapter = adapter
		in.Forced = true
		in.Mismatches = forcedMismatches(adapter, a)
		return in, nil
	}
	in.Adapter, in.DetectErr = reg.Detect(a, diag)
	in.Rejections = diag.Rejections()
	return in, nil
}
