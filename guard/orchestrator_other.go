//go:build !linux

package guard

import (
	"context"
	"fmt"
	"os"
)

// runNamespaced is unavailable outside Linux: unprivileged user namespaces
// and the FUSE kernel module are Linux-specific (spec.md §1 Non-goals).
func runNamespaced(ctx context.Context, in RunInput, plan []MountPoint) (int, error) {
	return 126, ErrUnsupportedPlatform
}

// RunSupervisor stubs the Linux-only Supervisor entrypoint so
// cmd/fuse-access-guard's self-reexec dispatch links on every platform; it
// is never reached in practice because runNamespaced above never spawns a
// Supervisor off Linux in the first place.
func RunSupervisor(args []string, stderr *os.File) int {
	fmt.Fprintln(stderr, ErrUnsupportedPlatform)
	return 126
}

// RunGrandchild stubs the Linux-only Grandchild entrypoint for the same
// reason as RunSupervisor.
func RunGrandchild(args []string) int {
	fmt.Fprintln(os.Stderr, ErrUnsupportedPlatform)
	return 126
}
