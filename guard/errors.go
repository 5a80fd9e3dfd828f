package guard

import "errors"

// Errors in the Setup and Exec taxonomy classes of spec.md §7. The guard
// functions that produce them also return the matching exit code, which
// cmd/fuse-access-guard passes through unchanged: Setup errors exit 126,
// Exec errors exit 127 (raised in the grandchild process only).
var (
	// ErrUnsupportedPlatform is returned when the orchestrator cannot run
	// on the current GOOS (spec.md §1 Non-goals: "operation on platforms
	// without unprivileged user namespaces and a userspace-filesystem
	// kernel module").
	ErrUnsupportedPlatform = errors.New("fuse-access-guard: requires Linux with unprivileged user namespaces and FUSE")

	// ErrNamespaceSetup covers unshare/id-map failures reported by the
	// Parent when it starts the Supervisor, mount-propagation failures in
	// the Supervisor, and a malformed Supervisor argv (spec.md §4.4 steps
	// 4-6).
	ErrNamespaceSetup = errors.New("fuse-access-guard: namespace setup failed")

	// ErrSourceDirOpen covers a failed open of a mount point's source
	// directory (spec.md §4.4 step 10).
	ErrSourceDirOpen = errors.New("fuse-access-guard: could not open source directory")

	// ErrOverlayMount covers a failed overlay filesystem mount (spec.md
	// §4.4 step 11).
	ErrOverlayMount = errors.New("fuse-access-guard: could not mount overlay")

	// ErrExec covers a failed exec of the user command in the
	// grandchild (spec.md §4.4 step 13).
	ErrExec = errors.New("fuse-access-guard: exec failed")
)
