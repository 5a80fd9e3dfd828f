package guard

import (
	"errors"
	"testing"
)

func Test_ParseRules_Resolves_Dot_Slash_Against_Cwd(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Read(./secret.txt)"}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "/work/secret.txt"
	if got := rules.DeniedPaths(); len(got) != 1 || got[0] != want {
		t.Errorf("DeniedPaths() = %v, want [%q]", got, want)
	}
}

func Test_ParseRules_Joins_Dot_Dot_As_Is(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Write(../other/file)"}, nil, "/work/sub")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "/work/other/file"
	if got := rules.DeniedPaths(); len(got) != 1 || got[0] != want {
		t.Errorf("DeniedPaths() = %v, want [%q]", got, want)
	}
}

func Test_ParseRules_Keeps_Absolute_Path_Verbatim(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Execute(/usr/bin/sudo)"}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "/usr/bin/sudo"
	if got := rules.DeniedPaths(); len(got) != 1 || got[0] != want {
		t.Errorf("DeniedPaths() = %v, want [%q]", got, want)
	}
}

func Test_ParseRules_Rejects_Malformed_Format(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]string{"Read()"}, nil, "/work")
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func Test_ParseRules_Rejects_Unknown_Operation(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]string{"Delete(/tmp/x)"}, nil, "/work")
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
}

func Test_ParseRules_Joins_Multiple_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]string{"Delete(/tmp/x)", "Read()"}, nil, "/work")
	if err == nil {
		t.Fatal("expected an error")
	}

	if !errors.Is(err, ErrUnknownOperation) || !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want both ErrUnknownOperation and ErrInvalidFormat joined", err)
	}
}

func Test_IsDenied_Matches_Only_The_Declared_Operation(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Read(/work/secret.txt)"}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rules.IsDenied("/work/secret.txt", OpRead) {
		t.Error("expected /work/secret.txt to be denied for read")
	}

	if rules.IsDenied("/work/secret.txt", OpWrite) {
		t.Error("expected /work/secret.txt to be allowed for write")
	}

	if rules.IsDenied("/work/other.txt", OpRead) {
		t.Error("expected /work/other.txt to be allowed")
	}
}

func Test_IsDenied_Matches_Glob_Pattern_Including_Dotfiles(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Read(/work/*.env)"}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rules.IsDenied("/work/.env", OpRead) {
		t.Error("expected /work/.env to match /work/*.env (leading dot is not special)")
	}

	if !rules.IsDenied("/work/prod.env", OpRead) {
		t.Error("expected /work/prod.env to match /work/*.env")
	}

	if rules.IsDenied("/work/sub/prod.env", OpRead) {
		t.Error("expected /work/*.env to not cross a path segment")
	}
}

func Test_IsExcluded_Matches_Executable_Path(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules(nil, []string{"/usr/bin/git"}, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rules.IsExcluded("/usr/bin/git") {
		t.Error("expected /usr/bin/git to be excluded")
	}

	if rules.IsExcluded("/usr/bin/bash") {
		t.Error("expected /usr/bin/bash to not be excluded")
	}
}

func Test_ParseRules_Rejects_Malformed_Glob(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]string{"Read(/work/[unterminated)"}, nil, "/work")
	if !errors.Is(err, ErrInvalidGlob) {
		t.Fatalf("err = %v, want ErrInvalidGlob", err)
	}
}

func Test_ParseRules_Is_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := ParseRules([]string{"Read(./a)", "Write(./b/*)"}, []string{"./tool"}, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := ParseRules([]string{"Read(./a)", "Write(./b/*)"}, []string{"./tool"}, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.DeniedPaths()) != len(b.DeniedPaths()) {
		t.Fatal("expected identical denied path counts across equal inputs")
	}

	for i := range a.DeniedPaths() {
		if a.DeniedPaths()[i] != b.DeniedPaths()[i] {
			t.Errorf("DeniedPaths()[%d] differ: %q vs %q", i, a.DeniedPaths()[i], b.DeniedPaths()[i])
		}
	}
}

func Test_Operation_String(t *testing.T) {
	t.Parallel()

	cases := map[Operation]string{OpRead: "read", OpWrite: "write", OpExecute: "execute"}

	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("Operation(%d).String() = %q, want %q", op, got, want)
		}
	}
}
