package main

import (
	"fmt"
	"io"

	"github.com/avguard/fuse-access-guard/guard"
)

// DebugLogger prints sandbox startup details to stderr when --debug is
// passed. Disabled (all methods no-op) when output is nil, the same
// contract as the teacher's DebugLogger.
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger creates a debug logger writing to output.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// Config prints a summary of the resolved pipeline configuration: the
// working directory, every deny rule and executable exclusion, and the
// logging destination.
func (d *DebugLogger) Config(cfg guard.PipelineConfig) {
	if d.output == nil {
		return
	}

	d.Section("fuse-access-guard")
	d.Logf("cwd: %s", cfg.Cwd)
	d.Logf("command: %s %v", cfg.Command, cfg.Args)

	if len(cfg.DenyRules) == 0 {
		d.Logf("deny rules: (none, bypassing overlay pipeline)")
	} else {
		for _, r := range cfg.DenyRules {
			d.Logf("deny rule: %s", r)
		}
	}

	for _, e := range cfg.Exclusions {
		d.Logf("exclude-exec: %s", e)
	}

	if cfg.LogFile != "" {
		d.Logf("log file: %s", cfg.LogFile)
	}

	d.Logf("quiet: %t", cfg.Quiet)
}
