package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func (a *Archive) list() ([]Member, error) {
	switch a.kind {
	case KindZip:
		return listZip(a.path)
	case KindTar, KindTarGz, KindTarZst, KindTarXz:
		var members []Member
		err := a.walkTar(func(hdr *tar.Header, _ io.Reader) error {
			members = append(members, Member{
				RawPath: hdr.Name,
				Path:    NormalizePath(hdr.Name),
				Size:    hdr.Size,
				Type:    tarType(hdr.Typeflag),
			})
			return nil
		})
		return members, err
	case KindDirectory:
		return listDir(a.path)
	}
	return nil, fmt.Errorf("unsupported container kind %q", a.kind)
}

func listZip(p string) ([]Member, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = zr.Close()
	}()

	members := make([]Member, 0, len(zr.File))
	for _, f := range zr.File {
		members = append(members, Member{
			RawPath: f.Name,
			Path:    NormalizePath(f.Name),
			Size:    int64(f.UncompressedSize64),
			Type:    modeType(f.Mode()),
		})
	}
	return members, nil
}

func listDir(root string) ([]Member, error) {
	var members []Member
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		slash := filepath.ToSlash(rel)
		members = append(members, Member{
			RawPath: slash,
			Path:    slash,
			Size:    info.Size(),
			Type:    modeType(info.Mode()),
		})
		return nil
	})
	return members, err
}

// walkTar streams every header of a plain or compressed tar container.
func (a *Archive) walkTar(fn func(hdr *tar.Header, body io.Reader) error) error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	var r io.Reader = f
	switch a.kind {
	case KindTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		r = gz
	case KindTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case KindTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating xz reader: %w", err)
		}
		r = xr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		// pax metadata records, such as the global header git archive writes
		if hdr.Typeflag == tar.TypeXGlobalHeader || hdr.Typeflag == tar.TypeXHeader {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func tarType(flag byte) MemberType {
	switch flag {
	case tar.TypeReg:
		return TypeRegular
	case tar.TypeDir:
		return TypeDir
	case tar.TypeSymlink:
		return TypeSymlink
	case tar.TypeLink:
		return TypeHardlink
	}
	return TypeOther
}

func modeType(mode fs.FileMode) MemberType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	case mode.IsDir():
		return TypeDir
	case mode.IsRegular():
		return TypeRegular
	}
	return TypeOther
}
