//go:build unix

package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskFree reports the bytes available to an unprivileged caller on the
// filesystem holding path.
func DiskFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
