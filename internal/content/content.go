// Package content replaces a destination wp-content tree with an archive's.
package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	objectCacheDropIn = "object-cache.php"
	muPluginsDir      = "mu-plugins"
)

// Rules controls what Mirror leaves alone. Exclusions apply only to entries
// directly under the content root.
type Rules struct {
	// ManagedHost also protects the host's must-use plugin loader.
	ManagedHost bool
}

// Excluded reports whether rel (slash-separated, relative to the content
// root) is protected from both copying and deletion.
func (r Rules) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	if strings.Contains(rel, "/") {
		return false
	}
	switch rel {
	case objectCacheDropIn:
		return true
	case muPluginsDir, muPluginsDir + ".php":
		return r.ManagedHost
	}
	return false
}

// Report summarizes a mirror.
type Report struct {
	Copied   int
	Deleted  int
	Bytes    int64
	Excluded []string
}

// Mirror makes dst an exact copy of src, deleting whatever in dst has no
// counterpart in src. Excluded root entries are neither copied nor deleted.
func Mirror(src, dst string, rules Rules) (*Report, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dst, err)
	}

	rep := &Report{}
	excluded := map[string]bool{}

	// Pass 1: remove destination entries that src lacks or has as a
	// different type.
	err = filepath.WalkDir(dst, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dst {
			return nil
		}
		rel, err := filepath.Rel(dst, p)
		if err != nil {
			return err
		}
		if rules.Excluded(rel) {
			excluded[filepath.ToSlash(rel)] = true
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		srcInfo, err := os.Lstat(filepath.Join(src, rel))
		if err == nil && sameType(srcInfo.Mode(), d.Type()) {
			return nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing %s: %w", p, err)
		}
		rep.Deleted++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("pruning %s: %w", dst, err)
	}

	// Pass 2: copy everything from src.
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rules.Excluded(rel) {
			excluded[filepath.ToSlash(rel)] = true
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		n, err := copyEntry(p, filepath.Join(dst, rel), d)
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rep.Copied++
			rep.Bytes += n
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("copying into %s: %w", dst, err)
	}

	for name := range excluded {
		rep.Excluded = append(rep.Excluded, name)
	}
	sort.Strings(rep.Excluded)
	return rep, nil
}

// CopyTree copies src to dst recursively, keeping modes and symlinks.
func CopyTree(src, dst string) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		n, err := copyEntry(p, filepath.Join(dst, rel), d)
		total += n
		return err
	})
	if err != nil {
		return total, fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return total, nil
}

func sameType(a fs.FileMode, b fs.FileMode) bool {
	return a.Type() == b.Type()
}

func copyEntry(src, dst string, d fs.DirEntry) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	switch {
	case d.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
			return 0, fmt.Errorf("creating directory %s: %w", dst, err)
		}
		return 0, nil
	case d.Type()&fs.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return 0, err
		}
		_ = os.Remove(dst)
		return 0, os.Symlink(target, dst)
	case d.Type().IsRegular():
		return copyFile(src, dst, info.Mode().Perm())
	}
	// sockets, devices and fifos have no place in a content tree
	return 0, nil
}

func copyFile(src, dst string, mode fs.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = in.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("copying %s: %w", src, err)
	}
	return n, nil
}
