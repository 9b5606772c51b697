// Package archive opens backup containers, lists their members and extracts
// them into a sandbox directory.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// Kind is the container type detected by content sniffing.
type Kind string

const (
	KindZip       Kind = "zip"
	KindTar       Kind = "tar"
	KindTarGz     Kind = "tar.gz"
	KindTarZst    Kind = "tar.zst"
	KindTarXz     Kind = "tar.xz"
	KindDirectory Kind = "directory"
	KindUnknown   Kind = "unknown"
)

// MemberType classifies an entry in a container.
type MemberType int

const (
	TypeRegular MemberType = iota
	TypeDir
	TypeSymlink
	TypeHardlink
	TypeOther // devices, fifos and anything else
)

func (t MemberType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	default:
		return "special"
	}
}

// Member is one entry of a container. RawPath is the name exactly as stored;
// Path is the normalized slash form without "./" or trailing "/".
type Member struct {
	RawPath string
	Path    string
	Size    int64
	Type    MemberType
}

var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicXz     = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZip    = []byte("PK\x03\x04")
	magicZipEnd = []byte("PK\x05\x06")
	magicUstar  = []byte("ustar")
)

// Archive is a read-only view of a backup container on disk.
type Archive struct {
	path    string
	kind    Kind
	size    int64
	members []Member
	index   map[string]int
}

// Open stats path, sniffs its container kind and loads the member listing.
// An unknown kind is not an error here; callers decide how to report it.
func Open(p string) (*Archive, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	a := &Archive{path: p}
	if info.IsDir() {
		a.kind = KindDirectory
	} else {
		a.size = info.Size()
		kind, err := sniffFile(p)
		if err != nil {
			return nil, err
		}
		a.kind = kind
	}

	if a.kind == KindUnknown {
		return a, nil
	}

	members, err := a.list()
	if err != nil {
		return nil, fmt.Errorf("listing %s archive %s: %w", a.kind, p, err)
	}
	a.setMembers(members)

	if a.kind == KindDirectory {
		for _, m := range members {
			if m.Type == TypeRegular {
				a.size += m.Size
			}
		}
	}
	return a, nil
}

func sniffFile(p string) (Kind, error) {
	f, err := os.Open(p)
	if err != nil {
		return KindUnknown, fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return KindUnknown, fmt.Errorf("reading archive header: %w", err)
	}
	return Sniff(head[:n]), nil
}

// Sniff classifies a container from its leading bytes. Compressed
// signatures are checked before zip so a compressed stream is never
// mistaken for a zip.
func Sniff(head []byte) Kind {
	switch {
	case bytes.HasPrefix(head, magicZstd):
		return KindTarZst
	case bytes.HasPrefix(head, magicXz):
		return KindTarXz
	case bytes.HasPrefix(head, magicGzip):
		return KindTarGz
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipEnd):
		return KindZip
	case len(head) >= 262 && bytes.Equal(head[257:262], magicUstar):
		return KindTar
	}
	return KindUnknown
}

func (a *Archive) setMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })
	a.members = members
	a.index = make(map[string]int, len(members))
	for i, m := range members {
		if m.Path != "" {
			a.index[m.Path] = i
		}
	}
}

// Path returns the container's location on disk.
func (a *Archive) Path() string { return a.path }

// Kind returns the sniffed container kind.
func (a *Archive) Kind() Kind { return a.kind }

// Size returns the container's size in bytes. For a directory it is the
// total size of the regular files beneath it.
func (a *Archive) Size() int64 { return a.size }

// Members returns a copy of the member listing sorted by path.
func (a *Archive) Members() []Member {
	out := make([]Member, len(a.members))
	copy(out, a.members)
	return out
}

// RawPaths returns every member name as stored in the container.
func (a *Archive) RawPaths() []string {
	out := make([]string, 0, len(a.members))
	for _, m := range a.members {
		out = append(out, m.RawPath)
	}
	return out
}

// Has reports whether a member exists at the given slash path.
func (a *Archive) Has(p string) bool {
	_, ok := a.index[NormalizePath(p)]
	return ok
}

// HasDir reports whether any member lives under dir.
func (a *Archive) HasDir(dir string) bool {
	dir = NormalizePath(dir)
	if i, ok := a.index[dir]; ok && a.members[i].Type == TypeDir {
		return true
	}
	prefix := dir + "/"
	for _, m := range a.members {
		if strings.HasPrefix(m.Path, prefix) {
			return true
		}
	}
	return false
}

// Glob returns the regular-file members matching a path.Match pattern.
func (a *Archive) Glob(pattern string) []string {
	var out []string
	for _, m := range a.members {
		if m.Type != TypeRegular {
			continue
		}
		if ok, _ := path.Match(pattern, m.Path); ok {
			out = append(out, m.Path)
		}
	}
	return out
}

// NormalizePath converts a stored member name to the form used for lookups.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimRight(p, "/")
	if p == "." {
		return ""
	}
	return p
}
