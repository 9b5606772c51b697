package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/BadgerOps/siteport/internal/safety"
	"github.com/dustin/go-humanize"
)

// ErrFileTooLarge is returned when a member exceeds ExtractOptions.MaxFileSize.
var ErrFileTooLarge = errors.New("member exceeds maximum file size")

// ExtractOptions controls extraction.
type ExtractOptions struct {
	// MaxFileSize caps the size of any single member; zero means unlimited.
	MaxFileSize int64
	Logger      *slog.Logger
}

// ExtractReport summarizes an extraction.
type ExtractReport struct {
	Files int
	Dirs  int
	Bytes int64
}

// CheckMembers validates every member path and entry type without touching
// the filesystem. Links and special files are refused outright.
func (a *Archive) CheckMembers() error {
	if err := safety.ValidateMembers(a.RawPaths()); err != nil {
		return err
	}

	var reasons []string
	for _, m := range a.members {
		switch m.Type {
		case TypeRegular, TypeDir:
		default:
			reasons = append(reasons, fmt.Sprintf("%s entry is not allowed: %q", m.Type, m.RawPath))
		}
	}
	if len(reasons) > 0 {
		return importerr.Newf(importerr.Security, "validate member types",
			"%d link or special entr(ies) in archive", len(reasons)).
			WithReasons(reasons...).
			WithRemediation("re-create the backup without symbolic links or device files")
	}
	return nil
}

// Extract validates the whole listing and then unpacks the container into
// dest. Nothing is written when validation fails.
func (a *Archive) Extract(ctx context.Context, dest string, opts ExtractOptions) (*ExtractReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if a.kind == KindUnknown {
		return nil, importerr.Newf(importerr.Extraction, "extract archive",
			"unrecognized container format: %s", a.path).
			WithRemediation("supply a zip, tar, tar.gz or tar.zst file, or a pre-extracted directory")
	}
	if err := a.CheckMembers(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, importerr.New(importerr.Extraction, "create sandbox", err)
	}

	logger.Info("extracting archive", "path", a.path, "kind", a.kind, "members", len(a.members), "dest", dest)

	x := &extractor{ctx: ctx, dest: dest, max: opts.MaxFileSize, report: &ExtractReport{}}
	var err error
	switch a.kind {
	case KindZip:
		err = x.zip(a.path)
	case KindDirectory:
		err = x.dir(a)
	default:
		err = a.walkTar(x.tarEntry)
	}
	if err != nil {
		var ie *importerr.Error
		if errors.As(err, &ie) {
			return x.report, err
		}
		return x.report, importerr.New(importerr.Extraction, "extract archive", err)
	}

	logger.Info("archive extracted",
		"files", x.report.Files,
		"dirs", x.report.Dirs,
		"size", humanize.Bytes(uint64(x.report.Bytes)),
	)
	return x.report, nil
}

type extractor struct {
	ctx    context.Context
	dest   string
	max    int64
	report *ExtractReport
}

func (x *extractor) tarEntry(hdr *tar.Header, body io.Reader) error {
	if err := x.ctx.Err(); err != nil {
		return err
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		return x.mkdir(hdr.Name)
	case tar.TypeReg:
		return x.writeFile(hdr.Name, body, hdr.Size)
	}
	return importerr.Newf(importerr.Security, "extract archive",
		"unsupported tar entry type for %s: %c", hdr.Name, hdr.Typeflag)
}

func (x *extractor) zip(p string) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	for _, f := range zr.File {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		mode := f.Mode()
		if mode.IsDir() {
			if err := x.mkdir(f.Name); err != nil {
				return err
			}
			continue
		}
		if !mode.IsRegular() {
			return importerr.Newf(importerr.Security, "extract archive",
				"unsupported zip entry mode for %s: %s", f.Name, mode)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}
		err = x.writeFile(f.Name, rc, int64(f.UncompressedSize64))
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) dir(a *Archive) error {
	for _, m := range a.members {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		switch m.Type {
		case TypeDir:
			if err := x.mkdir(m.Path); err != nil {
				return err
			}
		case TypeRegular:
			src, err := os.Open(filepath.Join(a.path, filepath.FromSlash(m.Path)))
			if err != nil {
				return err
			}
			err = x.writeFile(m.Path, src, m.Size)
			_ = src.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *extractor) mkdir(name string) error {
	if NormalizePath(name) == "" {
		return nil
	}
	target, err := safety.JoinMember(x.dest, name)
	if err != nil {
		return importerr.New(importerr.Security, "extract archive", fmt.Errorf("unsafe path in archive %q: %w", name, err))
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	x.report.Dirs++
	return nil
}

func (x *extractor) writeFile(name string, r io.Reader, declared int64) error {
	if x.max > 0 && declared > x.max {
		return fmt.Errorf("%s (%s): %w", name, humanize.Bytes(uint64(declared)), ErrFileTooLarge)
	}
	target, err := safety.JoinMember(x.dest, name)
	if err != nil {
		return importerr.New(importerr.Security, "extract archive", fmt.Errorf("unsafe path in archive %q: %w", name, err))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}

	src := r
	if x.max > 0 {
		src = io.LimitReader(r, x.max+1)
	}
	n, err := io.Copy(out, src)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	if x.max > 0 && n > x.max {
		return fmt.Errorf("%s: %w", name, ErrFileTooLarge)
	}

	x.report.Files++
	x.report.Bytes += n
	return nil
}
