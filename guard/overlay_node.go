//go:build linux

package guard

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// entryTTL is used for both entry and attribute caching, per spec.md
// §4.3.1 ("entry-TTL = 1s", "attr-TTL = 1s").
const entryTTL = time.Second

// overlayNode is the single node type used for every inode in an overlay:
// files, directories and symlinks alike. Its behavior is driven entirely
// by the underlying stat result; there is no separate directory type.
type overlayNode struct {
	fs.Inode

	fsys *overlayFS
	rel  string // path relative to the source descriptor; "" for the root
}

var (
	_ fs.InodeEmbedder = (*overlayNode)(nil)
	_ fs.NodeLookuper  = (*overlayNode)(nil)
	_ fs.NodeGetattrer = (*overlayNode)(nil)
	_ fs.NodeOpener    = (*overlayNode)(nil)
	_ fs.NodeReaddirer = (*overlayNode)(nil)
	_ fs.NodeReadlinker = (*overlayNode)(nil)
	_ fs.NodeAccesser   = (*overlayNode)(nil)
	_ fs.NodeOpendirer  = (*overlayNode)(nil)
	_ fs.NodeStatfser   = (*overlayNode)(nil)
)

// relOrDot rewrites the empty relative path to "." before it is passed to
// any *at syscall, per spec.md §4.3.1.
func (n *overlayNode) relOrDot() string {
	if n.rel == "" {
		return "."
	}

	return n.rel
}

func (n *overlayNode) ino() uint64 {
	return n.StableAttr().Ino
}

// Lookup resolves a child by stat-ing it at the source descriptor; see
// spec.md §4.3.1.
func (n *overlayNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := path.Join(n.rel, name)

	var st unix.Stat_t
	if err := unix.Fstatat(n.fsys.sourceFD, childRel, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, errnoOf(err)
	}

	ino := n.fsys.allocIno(childRel)
	fillAttr(&st, &out.Attr)
	out.Attr.Ino = ino
	out.SetEntryTimeout(entryTTL)
	out.SetAttrTimeout(entryTTL)

	child := &overlayNode{fsys: n.fsys, rel: childRel}
	stable := fs.StableAttr{Ino: ino, Mode: st.Mode & syscall.S_IFMT}

	return n.NewPersistentInode(ctx, child, stable), 0
}

// Getattr re-stats the bound relative path.
func (n *overlayNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st unix.Stat_t
	if err := unix.Fstatat(n.fsys.sourceFD, n.relOrDot(), &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errnoOf(err)
	}

	fillAttr(&st, &out.Attr)
	out.Attr.Ino = n.ino()
	out.SetTimeout(entryTTL)

	return 0
}

// Open classifies the requested access, consults the rule engine (unless
// the caller executable is excluded), and either denies with a logged
// record or opens the backing file at the source descriptor. See
// spec.md §4.3.1/§4.3.2.
func (n *overlayNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	op := classifyAccess(flags)
	vpath := n.fsys.virtualPath(n.rel)

	if !n.callerExcluded(ctx) && n.fsys.rules.IsDenied(vpath, op) {
		n.logDenial(ctx, op, vpath)
		return nil, 0, syscall.EACCES
	}

	openFlags := int(flags) & (syscall.O_ACCMODE | syscall.O_APPEND | syscall.O_NONBLOCK)

	fd, err := unix.Openat(n.fsys.sourceFD, n.relOrDot(), openFlags, 0)
	if err != nil {
		return nil, 0, errnoOf(err)
	}

	return &fileHandle{fd: fd, virtualPath: vpath}, 0, 0
}

// Readdir enumerates the directory's entries, prepending synthetic "."
// and ".." per spec.md §4.3.1. "." and ".." from the underlying stream
// are skipped so they are never emitted twice.
func (n *overlayNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	fd, err := unix.Openat(n.fsys.sourceFD, n.relOrDot(), unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, errnoOf(err)
	}

	dir := os.NewFile(uintptr(fd), n.fsys.virtualPath(n.rel))
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, errnoOf(err)
	}

	parentIno := n.ino()
	if p := n.Inode.Parent(); p != nil {
		parentIno = p.StableAttr().Ino
	}

	entries := make([]fuse.DirEntry, 0, len(names)+2)
	entries = append(entries,
		fuse.DirEntry{Mode: syscall.S_IFDIR, Name: ".", Ino: n.ino()},
		fuse.DirEntry{Mode: syscall.S_IFDIR, Name: "..", Ino: parentIno},
	)

	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}

		childRel := path.Join(n.rel, name)

		var st unix.Stat_t
		if err := unix.Fstatat(n.fsys.sourceFD, childRel, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			continue
		}

		entries = append(entries, fuse.DirEntry{
			Mode: st.Mode,
			Name: name,
			Ino:  n.fsys.allocIno(childRel),
		})
	}

	return &dirStream{entries: entries}, 0
}

// Readlink reads the link target at the source descriptor.
func (n *overlayNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	buf := make([]byte, unix.PathMax)

	sz, err := unix.Readlinkat(n.fsys.sourceFD, n.relOrDot(), buf)
	if err != nil {
		return nil, errnoOf(err)
	}

	return buf[:sz], 0
}

// Access consults the rule engine for each requested bit before falling
// through to faccessat, per spec.md §4.3.1.
func (n *overlayNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	vpath := n.fsys.virtualPath(n.rel)

	if !n.callerExcluded(ctx) {
		if mask&unix.R_OK != 0 && n.fsys.rules.IsDenied(vpath, OpRead) {
			return syscall.EACCES
		}

		if mask&unix.W_OK != 0 && n.fsys.rules.IsDenied(vpath, OpWrite) {
			return syscall.EACCES
		}

		if mask&unix.X_OK != 0 && n.fsys.rules.IsDenied(vpath, OpExecute) {
			return syscall.EACCES
		}
	}

	return errnoOf(unix.Faccessat(n.fsys.sourceFD, n.relOrDot(), mask, 0))
}

// Opendir verifies the target is a directory; no backing descriptor is
// retained (Readdir opens its own).
func (n *overlayNode) Opendir(ctx context.Context) syscall.Errno {
	var st unix.Stat_t
	if err := unix.Fstatat(n.fsys.sourceFD, n.relOrDot(), &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errnoOf(err)
	}

	if st.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		return syscall.ENOTDIR
	}

	return 0
}

// Statfs reports statistics for the source descriptor's filesystem.
func (n *overlayNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	var st unix.Statfs_t
	if err := unix.Fstatfs(n.fsys.sourceFD, &st); err != nil {
		return errnoOf(err)
	}

	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namelen)
	out.Frsize = uint32(st.Frsize)

	return 0
}

// callerExcluded resolves the calling process's executable via
// /proc/<pid>/exe and checks it against the executable-exclusion list, per
// spec.md §4.3.2. A failed read is treated as "not excluded".
func (n *overlayNode) callerExcluded(ctx context.Context) bool {
	caller, ok := fuse.FromContext(ctx)
	if !ok {
		return false
	}

	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", caller.Pid))
	if err != nil {
		return false
	}

	return n.fsys.rules.IsExcluded(exe)
}

func (n *overlayNode) logDenial(ctx context.Context, op Operation, vpath string) {
	pid := 0
	if caller, ok := fuse.FromContext(ctx); ok {
		pid = int(caller.Pid)
	}

	n.fsys.logger.Deny(DenialRecord{
		Time: time.Now(),
		Pid:  pid,
		Proc: procName(pid),
		Op:   op,
		Path: vpath,
	})
}

// procName reads /proc/<pid>/comm for a readable process name, falling
// back to "pid:<pid>" per spec.md §4.3.3 when that fails.
func procName(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return fmt.Sprintf("pid:%d", pid)
	}

	return strings.TrimSpace(string(data))
}

// classifyAccess maps open(2) flags to Read or Write per spec.md §4.3.1:
// anything that is not write-only or read-write is treated as Read.
func classifyAccess(flags uint32) Operation {
	switch int(flags) & syscall.O_ACCMODE {
	case syscall.O_WRONLY, syscall.O_RDWR:
		return OpWrite
	default:
		return OpRead
	}
}

// fillAttr maps a stat result onto a fuse.Attr: file type and permission
// bits pass through as-is (stat's mode already packs type bits above the
// low 12 permission bits), times are interpreted as seconds since the
// epoch, and block/device fields pass through unchanged.
func fillAttr(st *unix.Stat_t, out *fuse.Attr) {
	out.Size = uint64(st.Size)
	out.Blocks = uint64(st.Blocks)
	out.Atime = uint64(st.Atim.Sec)
	out.Atimensec = uint32(st.Atim.Nsec)
	out.Mtime = uint64(st.Mtim.Sec)
	out.Mtimensec = uint32(st.Mtim.Nsec)
	out.Ctime = uint64(st.Ctim.Sec)
	out.Ctimensec = uint32(st.Ctim.Nsec)
	out.Mode = st.Mode
	out.Nlink = uint32(st.Nlink)
	out.Owner = fuse.Owner{Uid: st.Uid, Gid: st.Gid}
	out.Rdev = uint32(st.Rdev)
	out.Blksize = uint32(st.Blksize)
}

// errnoOf converts a syscall error into the syscall.Errno the kernel
// expects in a reply. golang.org/x/sys/unix errors on Linux are
// syscall.Errno values already; any other error class is reported as I/O
// error.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}

	return syscall.EIO
}
