package guard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Plan_Derives_Deduplicated_Parent_Directories(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{
		"Read(/work/secret.txt)",
		"Write(/work/other.txt)",
		"Read(/work/sub/deep.txt)",
	}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := Plan(rules)

	want := []MountPoint{
		{Source: "/work", Target: "/work"},
		{Source: "/work/sub", Target: "/work/sub"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func Test_Plan_Ascends_Past_Glob_Metacharacters_In_Parent(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]string{"Read(/work/a/*/b)"}, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := Plan(rules)

	want := []MountPoint{{Source: "/work/a", Target: "/work/a"}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func Test_Plan_Is_Empty_For_No_Rules(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules(nil, nil, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := Plan(rules); len(got) != 0 {
		t.Errorf("Plan() = %v, want empty", got)
	}
}

func Test_ContainsGlobMeta(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/work/a":     false,
		"/work/a*":    true,
		"/work/a?b":   true,
		"/work/[abc]": true,
	}

	for s, want := range cases {
		if got := containsGlobMeta(s); got != want {
			t.Errorf("containsGlobMeta(%q) = %v, want %v", s, got, want)
		}
	}
}
