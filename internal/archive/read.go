package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrMemberNotFound is returned by ReadMember for a missing member.
var ErrMemberNotFound = errors.New("member not found")

// errStopWalk ends a tar walk early once the wanted member has been read.
var errStopWalk = errors.New("stop walk")

// ReadMember returns up to limit bytes of a regular-file member without
// extracting the container. Adapters use it to inspect small metadata files.
func (a *Archive) ReadMember(p string, limit int64) ([]byte, error) {
	want := NormalizePath(p)
	i, ok := a.index[want]
	if !ok || a.members[i].Type != TypeRegular {
		return nil, fmt.Errorf("%s: %w", p, ErrMemberNotFound)
	}

	switch a.kind {
	case KindDirectory:
		f, err := os.Open(filepath.Join(a.path, filepath.FromSlash(want)))
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		return io.ReadAll(io.LimitReader(f, limit))

	case KindZip:
		zr, err := zip.OpenReader(a.path)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = zr.Close()
		}()
		for _, f := range zr.File {
			if NormalizePath(f.Name) != want {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer func() {
				_ = rc.Close()
			}()
			return io.ReadAll(io.LimitReader(rc, limit))
		}

	case KindTar, KindTarGz, KindTarZst, KindTarXz:
		var data []byte
		err := a.walkTar(func(hdr *tar.Header, body io.Reader) error {
			if NormalizePath(hdr.Name) != want {
				return nil
			}
			b, err := io.ReadAll(io.LimitReader(body, limit))
			if err != nil {
				return err
			}
			data = b
			return errStopWalk
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			return nil, err
		}
		if data != nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", p, ErrMemberNotFound)
}
