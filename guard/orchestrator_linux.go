//go:build linux

package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// runNamespaced implements the Parent (P) side of spec.md §4.4: it
// self-reexecs into a Supervisor process started directly inside a fresh
// user+mount namespace (Cloneflags on the exec.Cmd achieves, atomically at
// process-creation time, what spec.md describes as S separately calling
// unshare(CLONE_NEWUSER|CLONE_NEWNS) after being forked — see DESIGN.md).
// GidMappingsEnableSetgroups is left at its zero value (false), which
// makes the Go runtime write "deny" to /proc/<pid>/setgroups before
// applying the gid mapping, satisfying step 5's setgroups requirement for
// free.
func runNamespaced(ctx context.Context, in RunInput, plan []MountPoint) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 126, fmt.Errorf("%w: resolving self executable: %v", ErrNamespaceSetup, err)
	}

	cmd := exec.CommandContext(ctx, exe, buildSupervisorArgv(in.Config)...)
	cmd.Stdin = in.Stdin
	cmd.Stdout = in.Stdout
	cmd.Stderr = in.Stderr
	cmd.Env = in.Env

	uid, gid := os.Getuid(), os.Getgid()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:  syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS,
		UidMappings: []syscall.SysProcIDMap{{ContainerID: uid, HostID: uid, Size: 1}},
		GidMappings: []syscall.SysProcIDMap{{ContainerID: gid, HostID: gid, Size: 1}},
	}

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCodeOf(exitErr), nil
	}

	return 126, fmt.Errorf("%w (unprivileged user namespaces may be disabled; check /proc/sys/kernel/unprivileged_userns_clone): %v", ErrNamespaceSetup, err)
}

// buildSupervisorArgv encodes a PipelineConfig as argv for the
// self-reexecuted Supervisor process. This is an internal wire format
// between two invocations of the same binary, not a user-facing CLI
// surface, so a small fixed positional scheme is used rather than a flag
// parser.
func buildSupervisorArgv(cfg PipelineConfig) []string {
	argv := []string{SupervisorToken, cfg.Cwd}

	if cfg.Quiet {
		argv = append(argv, "1")
	} else {
		argv = append(argv, "0")
	}

	if cfg.LogFile == "" {
		argv = append(argv, "-")
	} else {
		argv = append(argv, cfg.LogFile)
	}

	argv = append(argv, strconv.Itoa(len(cfg.DenyRules)))
	argv = append(argv, cfg.DenyRules...)
	argv = append(argv, strconv.Itoa(len(cfg.Exclusions)))
	argv = append(argv, cfg.Exclusions...)
	argv = append(argv, cfg.Command)
	argv = append(argv, cfg.Args...)

	return argv
}

// parseSupervisorArgv decodes argv produced by buildSupervisorArgv. args
// excludes both the program name and the SupervisorToken.
func parseSupervisorArgv(args []string) (PipelineConfig, error) {
	if len(args) < 4 {
		return PipelineConfig{}, fmt.Errorf("%w: supervisor argv too short", ErrNamespaceSetup)
	}

	cfg := PipelineConfig{Cwd: args[0], Quiet: args[1] == "1"}
	if args[2] != "-" {
		cfg.LogFile = args[2]
	}

	rest := args[3:]

	n, rest, err := takeCount(rest)
	if err != nil {
		return PipelineConfig{}, err
	}

	cfg.DenyRules, rest = rest[:n], rest[n:]

	m, rest, err := takeCount(rest)
	if err != nil {
		return PipelineConfig{}, err
	}

	cfg.Exclusions, rest = rest[:m], rest[m:]

	if len(rest) < 1 {
		return PipelineConfig{}, fmt.Errorf("%w: missing command in supervisor argv", ErrNamespaceSetup)
	}

	cfg.Command, cfg.Args = rest[0], rest[1:]

	return cfg, nil
}

func takeCount(args []string) (int, []string, error) {
	if len(args) < 1 {
		return 0, nil, fmt.Errorf("%w: missing count in supervisor argv", ErrNamespaceSetup)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n > len(args)-1 {
		return 0, nil, fmt.Errorf("%w: malformed count in supervisor argv", ErrNamespaceSetup)
	}

	return n, args[1:], nil
}

// RunSupervisor is the Supervisor (S) entrypoint, invoked by
// cmd/fuse-access-guard when it recognizes SupervisorToken as its first
// argument. args excludes the program name and the token. It implements
// spec.md §4.4 steps 6-14 and 14's exit.
func RunSupervisor(args []string, stderr *os.File) int {
	cfg, err := parseSupervisorArgv(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 126
	}

	rules, err := ParseRules(cfg.DenyRules, cfg.Exclusions, cfg.Cwd)
	if err != nil {
		fmt.Fprintln(stderr, "fuse-access-guard:", err)
		return 1
	}

	plan := Plan(rules)

	var logFile *os.File
	if cfg.LogFile != "" {
		logFile, err = os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			fmt.Fprintln(stderr, "fuse-access-guard: opening log file:", err)
			return 126
		}

		defer logFile.Close()
	}

	logger := NewLogger(stderr, logFile, cfg.Quiet)

	// Step 6: stop mount events from leaking out of this mount namespace.
	if err := unixMountPrivate(); err != nil {
		fmt.Fprintln(stderr, "fuse-access-guard: marking / private:", err)
		return 126
	}

	// Steps 7-9: pipe handshake and the grandchild self-reexec.
	r, w, err := os.Pipe()
	if err != nil {
		fmt.Fprintln(stderr, "fuse-access-guard: creating sync pipe:", err)
		return 126
	}

	gExe, err := os.Executable()
	if err != nil {
		fmt.Fprintln(stderr, "fuse-access-guard: resolving self executable:", err)
		return 126
	}

	gCmd := exec.Command(gExe, GrandchildToken, cfg.Cwd, cfg.Command)
	gCmd.Args = append(gCmd.Args, cfg.Args...)
	gCmd.Stdin = os.Stdin
	gCmd.Stdout = os.Stdout
	gCmd.Stderr = os.Stderr
	gCmd.Env = os.Environ()
	gCmd.ExtraFiles = []*os.File{r}

	if err := gCmd.Start(); err != nil {
		fmt.Fprintln(stderr, "fuse-access-guard: starting command:", err)
		r.Close()
		w.Close()

		return 126
	}

	r.Close() // S's copy; G holds its own via fd 3.

	abort := func(code int) int {
		_, _ = w.Write([]byte("x"))
		w.Close()
		_ = gCmd.Process.Signal(syscall.SIGTERM)
		_, _ = gCmd.Process.Wait()

		return code
	}

	// Step 10: capture every source descriptor before mounting anything.
	sourceFDs := make(map[string]int, len(plan))

	for _, mp := range plan {
		fd, err := OpenSourceDescriptor(mp.Source)
		if err != nil {
			fmt.Fprintln(stderr, "fuse-access-guard:", err)
			return abort(126)
		}

		sourceFDs[mp.Source] = fd
	}

	// Step 11: mount an overlay per mount point.
	servers := make([]*fuse.Server, 0, len(plan))

	teardown := func() {
		for _, srv := range servers {
			_ = srv.Unmount()
		}

		for _, fd := range sourceFDs {
			_ = syscall.Close(fd)
		}
	}

	for _, mp := range plan {
		srv, err := SpawnOverlay(mp, sourceFDs[mp.Source], rules, logger)
		if err != nil {
			fmt.Fprintln(stderr, "fuse-access-guard:", err)
			teardown()

			return abort(126)
		}

		servers = append(servers, srv)
	}

	// Step 12: release G.
	_, _ = w.Write([]byte("r"))
	w.Close()

	// Step 14: wait for G, tear down, propagate the exit code.
	waitErr := gCmd.Wait()

	teardown()

	if waitErr == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitCodeOf(exitErr)
	}

	fmt.Fprintln(stderr, "fuse-access-guard:", waitErr)

	return 1
}

func unixMountPrivate() error {
	return mountPrivate()
}

// mountPrivate marks the root mount MS_PRIVATE|MS_REC, so the bind mounts
// and overlay mounts this process creates are confined to its own mount
// namespace (spec.md §4.4 step 6).
func mountPrivate() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("%w: marking / private: %v", ErrNamespaceSetup, err)
	}

	return nil
}

// syncPipeFD is the fixed descriptor number the Grandchild finds its end
// of the sync pipe on: ExtraFiles places the first extra file at fd 3 in
// the child, the slot immediately after stdin/stdout/stderr.
const syncPipeFD = 3

// RunGrandchild is the Grandchild (G) entrypoint, invoked by
// cmd/fuse-access-guard when it recognizes GrandchildToken as its first
// argument. args is {cwd, command, command-args...}, excluding the
// program name and the token. It implements spec.md §4.4 steps 9 and
// 13: block until S signals the overlays are mounted, then exec the
// user's command in place.
func RunGrandchild(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "fuse-access-guard: malformed grandchild argv")
		return 126
	}

	cwd, name, cmdArgs := args[0], args[1], args[2:]

	sync := os.NewFile(uintptr(syncPipeFD), "sync-pipe")

	buf := make([]byte, 1)
	if _, err := sync.Read(buf); err != nil || buf[0] != 'r' {
		fmt.Fprintln(os.Stderr, "fuse-access-guard: supervisor aborted setup")
		return 126
	}

	sync.Close()

	// Re-anchor cwd: it was resolved before the overlays were mounted, so
	// its dentry may now be shadowed by a mount. Leaving and returning to
	// it forces the kernel to re-resolve through the new mount table.
	if err := os.Chdir("/"); err == nil {
		_ = os.Chdir(cwd)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("%w: %v", ErrExec, err))
		return 127
	}

	argv := append([]string{name}, cmdArgs...)
	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("%w: %v", ErrExec, err))
		return 127
	}

	return 0 // unreachable: syscall.Exec never returns on success.
}
