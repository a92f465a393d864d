package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store loads, merges, and persists policy at "<stateDir>/policy.json",
// and compiles the ignore matcher from the policy ignore file plus the
// working directory's .gitignore.
type Store struct {
	stateDir     string
	configPatch  []byte // process-wide config struct, merged above defaults
}

// NewStore returns a Store rooted at stateDir. configPatch is an optional
// JSON patch representing the process-wide config struct, merged between
// the built-in defaults and whatever is on disk; pass nil if the process
// carries no config-level overrides.
func NewStore(stateDir string, configPatch []byte) *Store {
	return &Store{stateDir: stateDir, configPatch: configPatch}
}

func (s *Store) policyPath() string  { return filepath.Join(s.stateDir, "policy.json") }
func (s *Store) ignorePath() string  { return filepath.Join(s.stateDir, "policy.ignore") }

// Load merges on-disk policy.json (highest precedence) over the process
// config patch over built-in defaults, clamps and validates the result,
// and compiles the ignore matcher.
func (s *Store) Load() (Policy, []string, *IgnoreMatcher, error) {
	merged := Default()
	var warnings []string

	if len(s.configPatch) > 0 {
		m, w, err := mergePatch(merged, s.configPatch)
		if err != nil {
			return Policy{}, warnings, nil, err
		}
		merged, warnings = m, append(warnings, w...)
	}

	diskPatch, err := readJSONIfExists(s.policyPath())
	if err != nil {
		return Policy{}, warnings, nil, err
	}
	if len(diskPatch) > 0 {
		m, w, err := mergePatch(merged, diskPatch)
		if err != nil {
			return Policy{}, warnings, nil, err
		}
		merged, warnings = m, append(warnings, w...)
	} else {
		merged.clamp()
	}

	matcher, err := s.loadIgnoreMatcher()
	if err != nil {
		return Policy{}, warnings, nil, err
	}

	return merged, warnings, matcher, nil
}

// ReadRaw returns the raw on-disk policy.json object, or an empty object
// if none exists.
func (s *Store) ReadRaw() (map[string]any, error) {
	b, err := readJSONIfExists(s.policyPath())
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteMerged deep-merges patch onto the current on-disk policy and
// persists the result atomically.
func (s *Store) WriteMerged(patch []byte) (Policy, []string, error) {
	current, err := readJSONIfExists(s.policyPath())
	if err != nil {
		return Policy{}, nil, err
	}
	base := Default()
	if len(current) > 0 {
		merged, _, err := mergePatch(base, current)
		if err != nil {
			return Policy{}, nil, err
		}
		base = merged
	}
	merged, warnings, err := mergePatch(base, patch)
	if err != nil {
		return Policy{}, warnings, err
	}

	out, err := MarshalPatch(merged)
	if err != nil {
		return Policy{}, warnings, err
	}
	if err := atomicWriteFile(s.policyPath(), out, 0o644); err != nil {
		return Policy{}, warnings, err
	}
	return merged, warnings, nil
}

// ReloadIgnoreMatcher recompiles the ignore matcher from the current
// on-disk policy.ignore and .gitignore, for callers that need to refresh
// it independently of a full Load.
func (s *Store) ReloadIgnoreMatcher() (*IgnoreMatcher, error) {
	return s.loadIgnoreMatcher()
}

func (s *Store) loadIgnoreMatcher() (*IgnoreMatcher, error) {
	var patterns []string
	patterns = append(patterns, builtinIgnorePatterns...)

	if b, err := readJSONIfExists(s.ignorePath()); err != nil {
		return nil, err
	} else if len(b) > 0 {
		patterns = append(patterns, splitLines(string(b))...)
	}

	if b, err := os.ReadFile(".gitignore"); err == nil {
		patterns = append(patterns, splitLines(string(b))...)
	}

	return NewIgnoreMatcher(patterns)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimCR(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
