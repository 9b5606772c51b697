// Package importerr defines the error taxonomy shared by every import phase.
package importerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an import failure.
type Kind string

const (
	Validation  Kind = "validation"   // no adapter accepted the archive
	Security    Kind = "security"     // traversal or absolute member path
	Extraction  Kind = "extraction"   // container could not be unpacked
	Discovery   Kind = "discovery"    // database or content not found after extraction
	Ambiguity   Kind = "ambiguity"    // several unrelated installations in one database
	Import      Kind = "import"       // import failed or produced zero tables
	ConfigWrite Kind = "config_write" // prefix could not be written to wp-config.php
	Resource    Kind = "resource"     // insufficient disk space
	Snapshot    Kind = "snapshot"     // pre-import backup could not be taken
	Executor    Kind = "executor"     // wp CLI unavailable or misbehaving
)

// Error is a classified import failure. Reasons carries every individual
// finding (rejected adapters, unsafe paths, prefix candidates).
type Error struct {
	Kind        Kind
	Op          string
	Err         error
	Reasons     []string
	Remediation string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Reasons) > 0 {
		fmt.Fprintf(&b, " (%d reason(s))", len(e.Reasons))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithReasons attaches individual findings.
func (e *Error) WithReasons(reasons ...string) *Error {
	e.Reasons = append(e.Reasons, reasons...)
	return e
}

// WithRemediation attaches operator-facing advice.
func (e *Error) WithRemediation(text string) *Error {
	e.Remediation = text
	return e
}

// Is reports whether err (or anything it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
