package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PreservationSet names plugins and themes that exist at the destination
// but not in the archive.
type PreservationSet struct {
	Plugins []string
	Themes  []string
}

// Empty reports whether nothing needs preserving.
func (s PreservationSet) Empty() bool { return len(s.Plugins) == 0 && len(s.Themes) == 0 }

// PluginSlugs returns the names wp uses to address the preserved plugins.
func (s PreservationSet) PluginSlugs() []string {
	slugs := make([]string, 0, len(s.Plugins))
	for _, p := range s.Plugins {
		slugs = append(slugs, strings.TrimSuffix(p, ".php"))
	}
	return slugs
}

// ComputePreservation diffs the plugins/ and themes/ listings of the
// destination (dst) against the archive content (src).
func ComputePreservation(src, dst string) (PreservationSet, error) {
	plugins, err := missingFrom(filepath.Join(src, "plugins"), filepath.Join(dst, "plugins"))
	if err != nil {
		return PreservationSet{}, err
	}
	themes, err := missingFrom(filepath.Join(src, "themes"), filepath.Join(dst, "themes"))
	if err != nil {
		return PreservationSet{}, err
	}
	return PreservationSet{Plugins: plugins, Themes: themes}, nil
}

func missingFrom(src, dst string) ([]string, error) {
	dstNames, err := listNames(dst)
	if err != nil {
		return nil, err
	}
	srcNames, err := listNames(src)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(srcNames))
	for _, n := range srcNames {
		have[n] = true
	}
	var out []string
	for _, n := range dstNames {
		if !have[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Name() == "index.php" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s PreservationSet) each(fn func(kind, name string) error) error {
	for _, p := range s.Plugins {
		if err := fn("plugins", p); err != nil {
			return err
		}
	}
	for _, t := range s.Themes {
		if err := fn("themes", t); err != nil {
			return err
		}
	}
	return nil
}

// Preserve copies the set out of the destination into stash.
func Preserve(s PreservationSet, dst, stash string) error {
	return s.each(func(kind, name string) error {
		from := filepath.Join(dst, kind, name)
		to := filepath.Join(stash, kind, name)
		if _, err := CopyTree(from, to); err != nil {
			return fmt.Errorf("preserving %s/%s: %w", kind, name, err)
		}
		return nil
	})
}

// Restore puts stashed entries back into the destination.
func Restore(s PreservationSet, stash, dst string) error {
	return s.each(func(kind, name string) error {
		from := filepath.Join(stash, kind, name)
		to := filepath.Join(dst, kind, name)
		if err := os.RemoveAll(to); err != nil {
			return fmt.Errorf("clearing %s: %w", to, err)
		}
		if _, err := CopyTree(from, to); err != nil {
			return fmt.Errorf("restoring %s/%s: %w", kind, name, err)
		}
		return nil
	})
}
