package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSymlinkAncestor reports that a directory between the root and a target
// is a symbolic link, so writing through it could land outside the root.
var ErrSymlinkAncestor = errors.New("path passes through a symbolic link")

// CleanMemberPath turns an archive member path into a relative OS path.
// Backslash separators are accepted and a leading "./" is dropped. The
// result never names the root itself.
func CleanMemberPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if err := CheckMemberPath(p); err != nil {
		return "", err
	}

	slashed := strings.ReplaceAll(p, `\`, "/")
	clean := filepath.Clean(filepath.FromSlash(slashed))
	switch {
	case clean == ".":
		return "", fmt.Errorf("path resolves to the archive root: %q", p)
	case filepath.IsAbs(clean) || filepath.VolumeName(clean) != "":
		return "", fmt.Errorf("absolute path is not allowed: %q", p)
	case escapes(clean):
		return "", fmt.Errorf("parent traversal is not allowed: %q", p)
	}
	return clean, nil
}

// JoinMember resolves member under root. Existing directories between root
// and the target must not be symbolic links.
func JoinMember(root, member string) (string, error) {
	rel, err := CleanMemberPath(member)
	if err != nil {
		return "", err
	}
	target, err := Contained(root, filepath.Join(root, rel))
	if err != nil {
		return "", err
	}
	if err := checkAncestors(root, rel); err != nil {
		return "", err
	}
	return target, nil
}

// Contained returns candidate as an absolute path, or an error when it
// resolves outside root. Symbolic links are not followed.
func Contained(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil || escapes(rel) {
		return "", fmt.Errorf("path escapes root %s: %q", root, candidate)
	}
	return candAbs, nil
}

func checkAncestors(root, rel string) error {
	dir := root
	parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		dir = filepath.Join(dir, part)
		fi, err := os.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect %s: %w", dir, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s: %w", dir, ErrSymlinkAncestor)
		}
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
