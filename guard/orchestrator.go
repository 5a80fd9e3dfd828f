package guard

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
)

// Internal self-reexec dispatch tokens. cmd/fuse-access-guard recognizes
// these as the first argument and routes to RunSupervisor/RunGrandchild
// instead of normal CLI parsing, the same way the teacher's multicall
// dispatcher recognizes a wrapped command name in argv[0] before falling
// through to ordinary flag parsing.
const (
	SupervisorToken = "__fuse_access_guard_supervisor__"
	GrandchildToken = "__fuse_access_guard_grandchild__"
)

// PipelineConfig is everything the Parent process must hand to the
// Supervisor (and, indirectly, the Grandchild) across the self-reexec
// boundary: enough to reconstruct AccessRules and the Logger, plus the
// command to run.
type PipelineConfig struct {
	DenyRules  []string
	Exclusions []string
	Cwd        string
	Quiet      bool
	LogFile    string
	Command    string
	Args       []string
}

// RunInput bundles everything the orchestrator needs to run the guarded
// command, independent of how it was configured.
type RunInput struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer
	Env            []string
	Config         PipelineConfig
}

// Run executes cfg's command under the access-control overlay described by
// its rules, or directly as a subprocess if the rule set requires no
// overlays (spec.md §4.2/§4.4: "If the mount-point set is empty, the
// orchestrator bypasses this whole pipeline"). It returns the exit code to
// use for the whole process, and an error only for conditions that could
// not be mapped to an exit code convention.
func Run(ctx context.Context, in RunInput) (int, error) {
	rules, err := ParseRules(in.Config.DenyRules, in.Config.Exclusions, in.Config.Cwd)
	if err != nil {
		return 1, err
	}

	plan := Plan(rules)

	if len(plan) == 0 {
		return runDirect(ctx, in)
	}

	return runNamespaced(ctx, in, plan)
}

// runDirect executes the command as a plain subprocess, inheriting stdio
// and propagating the exit code (or 128+signal), per spec.md §4.2's
// empty-mount-point bypass.
func runDirect(ctx context.Context, in RunInput) (int, error) {
	cmd := exec.CommandContext(ctx, in.Config.Command, in.Config.Args...)
	cmd.Dir = in.Config.Cwd
	cmd.Stdin = in.Stdin
	cmd.Stdout = in.Stdout
	cmd.Stderr = in.Stderr
	cmd.Env = in.Env

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCodeOf(exitErr), nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return 127, nil
	}

	return 1, err
}

// exitCodeOf maps an *exec.ExitError to the exit code convention of
// spec.md §6: the command's own code, or 128+signal if it was signaled.
func exitCodeOf(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}

	return err.ExitCode()
}
