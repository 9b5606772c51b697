// Package safety guards the filesystem and network boundaries against
// untrusted archive content.
package safety

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/siteport/internal/importerr"
)

// CheckMemberPath rejects archive member paths that traverse upward or are
// absolute. Traversal is matched per path segment, so a file name that merely
// contains ".." (for example "John-Jr..jpg") is accepted.
func CheckMemberPath(p string) error {
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("member path contains NUL byte: %q", p)
	}
	if strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "//") {
		return fmt.Errorf("UNC path is not allowed: %q", p)
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("absolute path is not allowed: %q", p)
	}
	if hasDriveLetter(p) {
		return fmt.Errorf("drive-letter path is not allowed: %q", p)
	}
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		if seg == ".." {
			return fmt.Errorf("parent traversal is not allowed: %q", p)
		}
	}
	return nil
}

// ValidateMembers checks every member path and reports all violations at
// once. A non-nil result is always a Security error.
func ValidateMembers(paths []string) error {
	var reasons []string
	for _, p := range paths {
		if err := CheckMemberPath(p); err != nil {
			reasons = append(reasons, err.Error())
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return importerr.Newf(importerr.Security, "validate member paths",
		"%d unsafe member path(s) in archive", len(reasons)).
		WithReasons(reasons...).
		WithRemediation("the archive was not extracted; obtain a clean export from the source site")
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
