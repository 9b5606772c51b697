// Package sqldump merges per-table SQL dumps into a single import stream.
package sqldump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BadgerOps/siteport/internal/importerr"
)

// Result describes a consolidated dump.
type Result struct {
	Path  string
	Files []string
	Bytes int64
}

// Consolidate concatenates every file in dir matching pattern into dest.
// Files are ordered by byte-wise name comparison and each one is terminated
// with a newline if it lacks one, so the same input set always yields the
// same output and no statement spans two dumps.
func Consolidate(dir, pattern string, minTables int, dest string) (*Result, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, importerr.Newf(importerr.Discovery, "consolidate dumps",
			"no files matching %s in %s", pattern, dir)
	}
	if len(files) < minTables {
		return nil, importerr.Newf(importerr.Discovery, "consolidate dumps",
			"found %d table dump(s) in %s, expected at least %d", len(files), dir, minTables).
			WithRemediation("the backup looks truncated; re-download it from the source")
	}

	// filepath.Glob already sorts, but only by the platform's notion of
	// order; sort the base names byte-wise explicitly.
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", dest, err)
	}
	w := bufio.NewWriter(out)

	res := &Result{Path: dest}
	for _, f := range files {
		n, last, err := appendFile(w, f)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		res.Bytes += n
		// A dump ending mid-line would run into the next file's first
		// statement, or turn it into part of a trailing comment.
		if n > 0 && last != '\n' {
			if err := w.WriteByte('\n'); err != nil {
				_ = out.Close()
				return nil, fmt.Errorf("writing %s: %w", dest, err)
			}
			res.Bytes++
		}
		res.Files = append(res.Files, filepath.Base(f))
	}

	if err := w.Flush(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("flushing %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", dest, err)
	}
	return res, nil
}

func appendFile(w io.Writer, p string) (int64, byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", p, err)
	}
	defer func() {
		_ = f.Close()
	}()
	lw := &lastByteWriter{w: w}
	n, err := io.Copy(lw, f)
	if err != nil {
		return n, lw.last, fmt.Errorf("copying %s: %w", p, err)
	}
	return n, lw.last, nil
}

// lastByteWriter remembers the final byte written through it.
type lastByteWriter struct {
	w    io.Writer
	last byte
}

func (l *lastByteWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if n > 0 {
		l.last = p[n-1]
	}
	return n, err
}
