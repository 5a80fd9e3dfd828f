package main

import (
	"bytes"
	"strings"
	"testing"
)

func Test_Run_Prints_Usage_With_No_Args(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, nil, nil, nil)
	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}

	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("stdout = %q, want it to contain usage text", stdout.String())
	}
}

func Test_Run_Prints_Usage_With_Help_Flag(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, []string{"--help"}, nil, nil)
	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}

	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("stdout = %q, want it to contain usage text", stdout.String())
	}
}

func Test_Run_Fails_When_Settings_File_Missing(t *testing.T) {
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, []string{"true"}, nil, nil)
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}

	if !strings.Contains(stderr.String(), progName) {
		t.Errorf("stderr = %q, want it to be prefixed with %q", stderr.String(), progName)
	}
}

func Test_Run_Executes_Directly_When_Deny_List_Is_Empty(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `{"permissions": {"deny": []}}`)
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, []string{"true"}, []string{}, nil)
	if code != 0 {
		t.Errorf("code = %d, want 0, stderr: %s", code, stderr.String())
	}
}

func Test_Run_CLI_ExcludeExec_Flag_Is_Additive(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `{"permissions": {"deny": [], "excludeExec": ["/usr/bin/git"]}}`)
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, []string{"--debug", "--exclude-exec", "/usr/bin/bash", "true"}, []string{}, nil)
	if code != 0 {
		t.Errorf("code = %d, want 0, stderr: %s", code, stderr.String())
	}

	for _, want := range []string{"exclude-exec: /usr/bin/git", "exclude-exec: /usr/bin/bash"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("stderr = %q, want it to contain %q", stderr.String(), want)
		}
	}
}

func Test_Run_Debug_Flag_Prints_Resolved_Config(t *testing.T) {
	// Uses an empty deny list so Run takes the direct-exec path: a non-empty
	// deny list would drive the namespaced pipeline, which self-reexecs the
	// running binary (the `go test` binary here, not fuse-access-guard) and
	// has no place in a fast unit test.
	dir := t.TempDir()
	writeSettings(t, dir, `{"permissions": {"deny": []}}`)
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer

	Run(nil, &stdout, &stderr, []string{"--debug", "true"}, []string{}, nil)

	if !strings.Contains(stderr.String(), "deny rules: (none") {
		t.Errorf("stderr = %q, want it to contain the resolved (empty) deny rules", stderr.String())
	}

	if !strings.Contains(stderr.String(), "cwd: "+dir) {
		t.Errorf("stderr = %q, want it to contain cwd: %s", stderr.String(), dir)
	}
}
