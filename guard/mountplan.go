package guard

import (
	"path/filepath"
	"strings"
)

// MountPoint is a directory to overlay. In the current design source and
// target are always equal: the overlay is mounted over the very directory
// it mirrors.
type MountPoint struct {
	Source string
	Target string
}

// Plan derives the set of MountPoints from an AccessRules, following
// spec.md §4.2: for each denied path, take the parent directory component,
// deduplicate, and emit one MountPoint per unique parent.
//
// A glob pattern whose parent directory itself contains metacharacters
// (e.g. "Read(./a/*/b)" yielding parent "./a/*") cannot anchor an overlay,
// since that parent does not exist as a real directory; such patterns are
// resolved by ascending to the longest metacharacter-free prefix directory
// (see DESIGN.md, Open Question 1).
func Plan(rules *AccessRules) []MountPoint {
	seen := make(map[string]struct{})

	var out []MountPoint

	for _, p := range rules.DeniedPaths() {
		parent := parentDir(p)
		if parent == "" {
			continue
		}

		if _, ok := seen[parent]; ok {
			continue
		}

		seen[parent] = struct{}{}

		out = append(out, MountPoint{Source: parent, Target: parent})
	}

	return out
}

// parentDir returns the directory that should be overlaid for a denied
// path or pattern. For a plain path, this is simply its parent directory.
// For a glob pattern whose immediate parent still contains metacharacters,
// it ascends until it finds a metacharacter-free prefix.
func parentDir(path string) string {
	dir := filepath.Dir(path)

	for containsGlobMeta(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the filesystem root without shedding metacharacters;
			// nothing sane to overlay.
			return ""
		}

		dir = parent
	}

	return dir
}

func containsGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
