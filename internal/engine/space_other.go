//go:build !unix

package engine

import "errors"

// ErrFreeSpaceUnsupported is returned where no filesystem query is available.
var ErrFreeSpaceUnsupported = errors.New("free space query not supported on this platform")

// DiskFree is unavailable on this platform.
func DiskFree(path string) (uint64, error) {
	return 0, ErrFreeSpaceUnsupported
}
