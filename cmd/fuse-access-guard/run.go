package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/avguard/fuse-access-guard/guard"
)

const progName = "fuse-access-guard"

const usageHelp = `fuse-access-guard - filesystem access-control sandbox

Usage: fuse-access-guard [--quiet] [--log-file PATH] [--exclude-exec PATH]... [--debug] [--] COMMAND [ARGS...]

Flags:
  -h, --help                Show help
      --quiet                Suppress stderr denial prints
      --log-file <path>      Append/truncate a denial log at <path>
      --exclude-exec <path>  Exempt <path> from rule enforcement (repeatable)
      --debug                Print sandbox startup details to stderr

Exit code: that of COMMAND, or 128+signal if it was signaled, 126 for setup
failure, 127 for command-not-found/exec failure, 1 for an unclassified error.`

// Run is the pure entrypoint: no global state, explicit stdio/env/args, an
// explicit exit code. Grounded on cmd/agent-sandbox/run.go's shape.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env []string, sigCh <-chan os.Signal) int {
	if runtime.GOOS != "linux" {
		fprintError(stderr, guard.ErrUnsupportedPlatform)
		return 126
	}

	flags := flag.NewFlagSet(progName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagQuiet := flags.Bool("quiet", false, "Suppress stderr denial prints")
	flagLogFile := flags.String("log-file", "", "Append/truncate a denial log at PATH")
	flagExcludeExec := flags.StringArray("exclude-exec", nil, "Exempt PATH from rule enforcement")
	flagDebug := flags.Bool("debug", false, "Print sandbox startup details to stderr")

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)
		return 1
	}

	commandAndArgs := flags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		fprintln(stdout, usageHelp)
		return 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		fprintError(stderr, fmt.Errorf("resolving working directory: %w", err))
		return 1
	}

	settings, err := LoadSettings(cwd)
	if err != nil {
		fprintError(stderr, err)
		return 1
	}

	if *flagQuiet {
		settings.Quiet = true
	}

	if *flagLogFile != "" {
		settings.LogFile = *flagLogFile
	}

	settings.ExcludeExec = append(settings.ExcludeExec, *flagExcludeExec...)

	cfg := guard.BuildPipelineConfig(settings, cwd, commandAndArgs[0], commandAndArgs[1:])

	debug := NewDebugLogger(nil)
	if *flagDebug {
		debug = NewDebugLogger(stderr)
	}
	debug.Config(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		code int
		err  error
	}

	done := make(chan result, 1)

	go func() {
		code, runErr := guard.Run(ctx, guard.RunInput{
			Stdin:  stdin,
			Stdout: stdout,
			Stderr: stderr,
			Env:    env,
			Config: cfg,
		})
		done <- result{code: code, err: runErr}
	}()

	if sigCh == nil {
		r := <-done
		return finish(stderr, r.code, r.err)
	}

	select {
	case r := <-done:
		return finish(stderr, r.code, r.err)
	case <-sigCh:
		cancel()
		r := <-done

		return finish(stderr, r.code, r.err)
	}
}

func finish(stderr io.Writer, code int, err error) int {
	if err != nil {
		fprintError(stderr, err)
	}

	return code
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintError(out io.Writer, err error) {
	fprintln(out, progName+":", err)
}
