package format

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BadgerOps/siteport/internal/importerr"
)

var contentMarkers = []string{"plugins", "themes", "uploads"}

type contentCandidate struct {
	path  string
	depth int
	score int
}

// BestContentDir picks the most plausible wp-content directory under root.
// A candidate scores one point for each of plugins, themes and uploads it
// contains; shallower candidates win ties, then lexical order.
func BestContentDir(root string) (string, error) {
	var candidates []contentCandidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() != "wp-content" {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		c := contentCandidate{path: p, depth: strings.Count(filepath.ToSlash(rel), "/")}
		for _, m := range contentMarkers {
			if isDir(filepath.Join(p, m)) {
				c.score++
			}
		}
		candidates = append(candidates, c)
		return nil
	})
	if err != nil {
		return "", importerr.New(importerr.Discovery, "locate content", err)
	}
	if len(candidates) == 0 {
		return "", importerr.Newf(importerr.Discovery, "locate content",
			"no wp-content directory under %s", root)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.path < b.path
	})
	return candidates[0].path, nil
}

// rootContentDir returns root/wp-content when it exists.
func rootContentDir(root, adapter string) (string, error) {
	p := filepath.Join(root, "wp-content")
	if !isDir(p) {
		return "", importerr.Newf(importerr.Discovery, "locate content",
			"%s: wp-content not found at archive root", adapter)
	}
	return p, nil
}
