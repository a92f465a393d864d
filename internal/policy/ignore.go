package policy

import (
	"path"
	"strings"
)

// builtinIgnorePatterns are always compiled into the matcher, ahead of any
// policy ignore file or .gitignore.
var builtinIgnorePatterns = []string{
	".git/**",
	".exposemgr/**",
}

// ignoreRule is one compiled gitignore-style pattern: a sequence of
// path segments (where "**" matches zero or more segments and each other
// segment is a shell glob), a negation flag, and a directory-only flag.
type ignoreRule struct {
	segments    []string
	negate      bool
	dirOnly     bool
	anchored    bool // pattern contained a "/" before the final segment
}

// IgnoreMatcher applies gitignore semantics: the last matching rule wins,
// and negated rules (`!pattern`) re-include a path an earlier rule
// excluded. A path is blocked if any of {relative-to-CWD,
// relative-to-filesystem-root, basename} matches.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles patterns (one per line, `#`-comments and blank
// lines skipped) into an IgnoreMatcher.
func NewIgnoreMatcher(patterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	for _, raw := range patterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := compileIgnoreRule(line)
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, rule)
	}
	return m, nil
}

func compileIgnoreRule(line string) (ignoreRule, error) {
	negate := strings.HasPrefix(line, "!")
	if negate {
		line = line[1:]
	}
	anchored := strings.Contains(strings.TrimSuffix(line, "/"), "/")
	line = strings.TrimPrefix(line, "/")

	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimSuffix(line, "/")
	if line == "" {
		return ignoreRule{}, nil
	}

	segments := strings.Split(line, "/")
	for _, seg := range segments {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return ignoreRule{}, err
		}
	}
	return ignoreRule{segments: segments, negate: negate, dirOnly: dirOnly, anchored: anchored}, nil
}

// Match reports whether relPath (slash-separated, relative to the
// directory the ignore file governs) is ignored.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(path.Clean("/"+relPath), "/")
	target := strings.Split(relPath, "/")
	base := []string{target[len(target)-1]}

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		matched := matchIgnoreSegments(r.segments, target)
		if !matched && !r.anchored {
			matched = matchIgnoreSegments(r.segments, base)
		}
		if matched {
			ignored = !r.negate
		}
	}
	return ignored
}

// MatchCandidate reports whether a path is ignored under any of three
// candidate forms: relative-to-CWD, relative-to-root, and basename.
// cwdRel and rootRel may be empty if not computable.
func (m *IgnoreMatcher) MatchCandidate(cwdRel, rootRel, base string, isDir bool) bool {
	if m == nil {
		return false
	}
	if cwdRel != "" && m.Match(cwdRel, isDir) {
		return true
	}
	if rootRel != "" && m.Match(rootRel, isDir) {
		return true
	}
	return m.Match(base, isDir)
}

func matchIgnoreSegments(pattern, target []string) bool {
	if len(pattern) == 0 {
		return len(target) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(target); i++ {
			if matchIgnoreSegments(pattern[1:], target[i:]) {
				return true
			}
		}
		return false
	}
	if len(target) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], target[0])
	if err != nil || !ok {
		return false
	}
	return matchIgnoreSegments(pattern[1:], target[1:])
}
