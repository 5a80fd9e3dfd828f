//go:build linux

package guard

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// overlayFS holds the state shared by every node of one mounted overlay:
// the pre-captured source directory descriptor, the rule engine, the
// logger, and the inode table (spec.md §3 "Overlay inode table").
//
// The inode table is an append-only bijection between inode numbers and
// paths relative to sourceFD, with monotonic allocation starting at 2 (1
// is reserved for the root, whose relative path is the empty string).
// Entries are never removed for the life of the overlay; this matches
// spec.md §9's "arena" design note and the observation that the cost
// (unbounded growth) is acceptable for sandbox lifetimes.
type overlayFS struct {
	sourcePath string
	sourceFD   int
	rules      *AccessRules
	logger     *Logger

	mu      sync.Mutex
	nextIno uint64
	paths   map[uint64]string
}

func newOverlayFS(sourcePath string, fd int, rules *AccessRules, logger *Logger) *overlayFS {
	return &overlayFS{
		sourcePath: sourcePath,
		sourceFD:   fd,
		rules:      rules,
		logger:     logger,
		nextIno:    2,
		paths:      map[uint64]string{1: ""},
	}
}

// allocIno returns the inode number for rel, allocating a new one if rel
// has not been seen before.
func (o *overlayFS) allocIno(rel string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	for ino, p := range o.paths {
		if p == rel {
			return ino
		}
	}

	ino := o.nextIno
	o.nextIno++
	o.paths[ino] = rel

	return ino
}

// virtualPath renders the absolute, rule-matching path for a path relative
// to the overlay's source directory.
func (o *overlayFS) virtualPath(rel string) string {
	if rel == "" {
		return o.sourcePath
	}

	return filepath.Join(o.sourcePath, rel)
}

// OpenSourceDescriptor opens sourcePath's directory, anchored by absolute
// path, before anything is mounted on it (spec.md §4.4 step 10). The
// returned descriptor is the sole anchor every subsequent overlay syscall
// uses; the overlay must never re-resolve sourcePath by absolute path once
// it is mounted over it.
func OpenSourceDescriptor(sourcePath string) (int, error) {
	fd, err := unix.Open(sourcePath, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("%w %s: %v", ErrSourceDirOpen, sourcePath, err)
	}

	return fd, nil
}

// SpawnOverlay constructs an overlay filesystem bound to sourceFD and
// mounts its userspace-filesystem server on mp.Target with the
// default_permissions option and filesystem name fuse-access-guard, per
// spec.md §6 / §4.4 step 11. fs.Mount starts the server's serve loop and
// waits for the mount, so the overlay is live once SpawnOverlay returns
// without error.
func SpawnOverlay(mp MountPoint, sourceFD int, rules *AccessRules, logger *Logger) (*fuse.Server, error) {
	fsys := newOverlayFS(mp.Source, sourceFD, rules, logger)
	root := &overlayNode{fsys: fsys, rel: ""}

	server, err := fs.Mount(mp.Target, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:  "fuse-access-guard",
			Name:    "fuse-access-guard",
			Options: []string{"default_permissions"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %v", ErrOverlayMount, mp.Target, err)
	}

	logger.Startup(mp.Target)

	return server, nil
}
