// Command fuse-access-guard runs an arbitrary child command under a
// per-invocation access-control overlay enforced by a userspace filesystem
// server.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/avguard/fuse-access-guard/guard"
)

func main() {
	// Self-reexec dispatch: the Namespace Orchestrator relaunches this same
	// binary as the Supervisor and the Grandchild (see guard/orchestrator_linux.go).
	// Both hidden subcommands are recognized here, before any normal flag
	// parsing, the same way the teacher's multicall dispatcher inspects
	// argv[0] before falling through to ordinary CLI parsing.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case guard.SupervisorToken:
			os.Exit(guard.RunSupervisor(os.Args[2:], os.Stderr))
		case guard.GrandchildToken:
			os.Exit(guard.RunGrandchild(os.Args[2:]))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	code := Run(os.Stdin, os.Stdout, os.Stderr, os.Args[1:], os.Environ(), sigCh)
	os.Exit(code)
}
