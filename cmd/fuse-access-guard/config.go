package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/avguard/fuse-access-guard/guard"
)

// settingsPath is the single configuration file location spec.md §6 names:
// there is no global/project layering here, unlike the teacher's
// LoadConfig.
const settingsPath = ".claude/settings.json"

// settingsFile is the on-disk shape of the configuration file: spec.md §6's
// `{"permissions": {"deny": [...]}}`, supplemented (SPEC_FULL §6) with
// excludeExec/logFile/quiet.
type settingsFile struct {
	Permissions struct {
		Deny        []string `json:"deny"`
		ExcludeExec []string `json:"excludeExec,omitempty"`
	} `json:"permissions"`
	LogFile string `json:"logFile,omitempty"`
	Quiet   bool   `json:"quiet,omitempty"`
}

// LoadSettings reads and parses <cwd>/.claude/settings.json. A missing
// file, I/O error, or malformed document (including malformed JSONC, after
// hujson standardization) is fatal at startup, per spec.md §6.
func LoadSettings(cwd string) (guard.Settings, error) {
	path := filepath.Join(cwd, settingsPath)

	raw, err := os.ReadFile(path)
	if err != nil {
		return guard.Settings{}, fmt.Errorf("reading %s: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return guard.Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var sf settingsFile
	if err := json.Unmarshal(std, &sf); err != nil {
		return guard.Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return guard.Settings{
		Deny:        sf.Permissions.Deny,
		ExcludeExec: sf.Permissions.ExcludeExec,
		LogFile:     sf.LogFile,
		Quiet:       sf.Quiet,
	}, nil
}
