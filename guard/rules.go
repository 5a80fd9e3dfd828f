// Package guard implements the access-control overlay: parsing deny rules,
// planning overlay mount points, serving the overlay filesystem, and
// orchestrating the namespaced process pipeline that runs the guarded
// command.
package guard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Operation identifies the kind of access a DenyRule governs.
type Operation int

const (
	// OpRead denies opening a path for reading.
	OpRead Operation = iota
	// OpWrite denies opening a path for writing.
	OpWrite
	// OpExecute denies executing a path.
	OpExecute
)

// String renders the operation the way it appears in a denial log line.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// parseOperation maps the grammar's Op token to an Operation.
func parseOperation(tok string) (Operation, error) {
	switch tok {
	case "Read":
		return OpRead, nil
	case "Write":
		return OpWrite, nil
	case "Execute":
		return OpExecute, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, tok)
	}
}

// Errors surfaced by rule construction. Queries never fail.
var (
	ErrInvalidFormat    = errors.New("invalid rule format")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidGlob      = errors.New("invalid glob pattern")
)

// PathPattern is either an exact absolute path or a glob pattern matched
// with doublestar, case-sensitively, with no special dotfile handling
// (require_literal_leading_dot = false): '*' may match dotfiles.
type PathPattern struct {
	raw    string // the resolved path or pattern string, always absolute-rooted
	isGlob bool
}

// newPathPattern classifies and resolves a single path/pattern token
// against the working directory, following the resolution rules of
// spec.md §4.1:
//   - a path starting with "./" has the prefix stripped and is joined with cwd
//   - a path starting with "../" is joined as-is with cwd
//   - an absolute path is used verbatim
//   - the path is classified as a glob if it contains any of '*', '?', '['
func newPathPattern(token, cwd string) PathPattern {
	resolved := resolveToken(token, cwd)

	return PathPattern{
		raw:    resolved,
		isGlob: strings.ContainsAny(token, "*?["),
	}
}

func resolveToken(token, cwd string) string {
	switch {
	case filepath.IsAbs(token):
		return token
	case strings.HasPrefix(token, "./"):
		return filepath.Join(cwd, strings.TrimPrefix(token, "./"))
	case strings.HasPrefix(token, "../"):
		return filepath.Join(cwd, token)
	default:
		return filepath.Join(cwd, token)
	}
}

// String returns the pattern's resolved/raw form (used for denied_paths
// and for mount planning).
func (p PathPattern) String() string {
	return p.raw
}

// IsGlob reports whether the pattern is glob-classified.
func (p PathPattern) IsGlob() bool {
	return p.isGlob
}

// matches reports whether the pattern matches the given absolute path.
func (p PathPattern) matches(path string) bool {
	if !p.isGlob {
		return p.raw == path
	}

	// doublestar works on slash-separated, non-rooted patterns; strip the
	// shared leading slash from both sides so absolute paths compare like
	// relative ones rooted at the same point.
	pattern := strings.TrimPrefix(p.raw, "/")
	candidate := strings.TrimPrefix(path, "/")

	ok, err := doublestar.Match(pattern, candidate)
	if err != nil {
		return false
	}

	return ok
}

// DenyRule pairs an Operation with the PathPattern it governs. Immutable
// once constructed.
type DenyRule struct {
	Op      Operation
	Pattern PathPattern
}

// ExecutableExclusion identifies a caller executable whose accesses bypass
// rule enforcement entirely.
type ExecutableExclusion struct {
	Pattern PathPattern
}

// AccessRules owns the parsed deny rules and executable exclusions. It is
// constructed once, before any overlay server starts, and is thereafter
// read-only and safe to share across overlay dispatchers without locking.
type AccessRules struct {
	rules      []DenyRule
	exclusions []ExecutableExclusion
}

// ParseRules parses deny-rule strings and executable-exclusion strings
// into an AccessRules, resolving relative paths against cwd.
//
// Deny-rule grammar: "Op(path)" where Op is Read, Write, or Execute and
// path is everything between the first '(' and the last ')'. A rule string
// with close <= open+1 is an invalid format; an unrecognized Op is an
// unknown operation. Malformed glob patterns (rejected by the matcher) are
// reported as invalid globs. All malformed rules are collected and
// returned together via errors.Join, rather than failing on the first one,
// so callers see every problem in one pass.
func ParseRules(denyRules, executableExclusions []string, cwd string) (*AccessRules, error) {
	var errs []error

	rules := make([]DenyRule, 0, len(denyRules))

	for _, s := range denyRules {
		rule, err := parseDenyRule(s, cwd)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", s, err))
			continue
		}

		rules = append(rules, rule)
	}

	exclusions := make([]ExecutableExclusion, 0, len(executableExclusions))

	for _, s := range executableExclusions {
		pattern := newPathPattern(s, cwd)
		if err := validatePattern(pattern); err != nil {
			errs = append(errs, fmt.Errorf("exclusion %q: %w", s, err))
			continue
		}

		exclusions = append(exclusions, ExecutableExclusion{Pattern: pattern})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &AccessRules{rules: rules, exclusions: exclusions}, nil
}

func parseDenyRule(s, cwd string) (DenyRule, error) {
	open := strings.IndexByte(s, '(')
	closeIdx := strings.LastIndexByte(s, ')')

	if open < 0 || closeIdx < 0 || closeIdx <= open+1 {
		return DenyRule{}, ErrInvalidFormat
	}

	opTok := s[:open]

	op, err := parseOperation(opTok)
	if err != nil {
		return DenyRule{}, err
	}

	path := s[open+1 : closeIdx]

	pattern := newPathPattern(path, cwd)
	if err := validatePattern(pattern); err != nil {
		return DenyRule{}, err
	}

	return DenyRule{Op: op, Pattern: pattern}, nil
}

func validatePattern(p PathPattern) error {
	if !p.isGlob {
		return nil
	}

	// doublestar.Match validates the pattern as it matches; probe it
	// against an empty candidate so malformed patterns (e.g. unterminated
	// character classes) surface at construction time rather than at the
	// first real request.
	_, err := doublestar.Match(strings.TrimPrefix(p.raw, "/"), "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGlob, err)
	}

	return nil
}

// IsDenied reports whether any rule denies op against path.
func (a *AccessRules) IsDenied(path string, op Operation) bool {
	for _, r := range a.rules {
		if r.Op == op && r.Pattern.matches(path) {
			return true
		}
	}

	return false
}

// IsExcluded reports whether exe matches any executable exclusion.
func (a *AccessRules) IsExcluded(exe string) bool {
	for _, e := range a.exclusions {
		if e.Pattern.matches(exe) {
			return true
		}
	}

	return false
}

// DeniedPaths returns, for each rule, the exact path for exact patterns and
// the verbatim pattern string for glob patterns. This is the input to the
// Mount Planner.
func (a *AccessRules) DeniedPaths() []string {
	out := make([]string, 0, len(a.rules))
	for _, r := range a.rules {
		out = append(out, r.Pattern.raw)
	}

	return out
}
