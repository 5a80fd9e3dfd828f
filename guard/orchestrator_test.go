package guard

import (
	"bytes"
	"context"
	"runtime"
	"testing"
)

func Test_Run_Bypasses_Orchestrator_When_No_Rules(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code, err := Run(context.Background(), RunInput{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{},
		Config: PipelineConfig{
			Command: "true",
			Cwd:     t.TempDir(),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
}

func Test_Run_Reports_Command_Not_Found_As_127(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code, err := Run(context.Background(), RunInput{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{},
		Config: PipelineConfig{
			Command: "this-command-should-not-exist-anywhere",
			Cwd:     t.TempDir(),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if code != 127 {
		t.Errorf("code = %d, want 127", code)
	}
}

func Test_Run_Propagates_Nonzero_Exit_Code(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code, err := Run(context.Background(), RunInput{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{},
		Config: PipelineConfig{
			Command: "false",
			Cwd:     t.TempDir(),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func Test_Run_Requires_Overlay_Pipeline_When_Rules_Present(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "linux" {
		t.Skip("on linux this exercises the real namespaced pipeline, which self-reexecs the test binary")
	}

	var stdout, stderr bytes.Buffer

	code, err := Run(context.Background(), RunInput{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{},
		Config: PipelineConfig{
			DenyRules: []string{"Read(./secret.txt)"},
			Command:   "true",
			Cwd:       t.TempDir(),
		},
	})

	if code != 126 {
		t.Errorf("code = %d, want 126", code)
	}

	if err == nil {
		t.Error("expected an error on a non-Linux platform")
	}
}
