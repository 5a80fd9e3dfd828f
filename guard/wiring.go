package guard

// Settings is the parsed form of the settings file spec.md §6 describes:
// deny rules, executable exclusions, and the optional logging controls
// SPEC_FULL.md §6 adds on top.
type Settings struct {
	Deny        []string
	ExcludeExec []string
	LogFile     string
	Quiet       bool
}

// BuildPipelineConfig assembles a PipelineConfig from loaded settings and
// the invocation's cwd/command, the aggregate-and-invoke step that
// cmd/fuse-access-guard's CLI layer calls before handing off to Run. It
// performs no I/O and cannot fail; rule parsing errors surface later, from
// Run itself, where they can be reported against the actual cwd used for
// resolution.
func BuildPipelineConfig(settings Settings, cwd, command string, args []string) PipelineConfig {
	return PipelineConfig{
		DenyRules:  settings.Deny,
		Exclusions: settings.ExcludeExec,
		Cwd:        cwd,
		Quiet:      settings.Quiet,
		LogFile:    settings.LogFile,
		Command:    command,
		Args:       args,
	}
}
