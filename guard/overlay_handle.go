//go:build linux

package guard

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// fileHandle is the payload of spec.md §3's "File handle table": a
// backing descriptor plus the virtual path it was opened for. The handle
// id itself (opaque, 64-bit) is allocated and tracked by go-fuse's own
// FileHandle registry; fileHandle supplies the (backing_descriptor,
// virtual_path) pair that registry maps ids onto, which is the only part
// of the table spec.md's data model actually asks the overlay to own.
type fileHandle struct {
	fd          int
	virtualPath string
}

var (
	_ fs.FileHandle  = (*fileHandle)(nil)
	_ fs.FileReader  = (*fileHandle)(nil)
	_ fs.FileWriter  = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

// Read performs a positional read on the backing descriptor.
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := unix.Pread(h.fd, dest, off)
	if err != nil {
		return nil, errnoOf(err)
	}

	return fuse.ReadResultData(dest[:n]), 0
}

// Write performs a positional write on the backing descriptor.
func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := unix.Pwrite(h.fd, data, off)
	if err != nil {
		return 0, errnoOf(err)
	}

	return uint32(n), 0
}

// Release closes the backing descriptor, per spec.md §4.3.1/§3: the
// overlay closes the backing descriptor on release and on teardown.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return errnoOf(unix.Close(h.fd))
}
