//go:build linux

package guard

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// dirStream is a fixed, pre-computed list of directory entries. Offset
// continuation (spec.md §4.3.1's "emit entries starting at offset") is
// handled by the go-fuse dispatch loop, which replays HasNext/Next calls
// from where the kernel's previous request left off; the stream itself
// only needs to be deterministic, which a pre-computed slice guarantees.
type dirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func (d *dirStream) HasNext() bool {
	return d.pos < len(d.entries)
}

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++

	return e, 0
}

func (d *dirStream) Close() {}
