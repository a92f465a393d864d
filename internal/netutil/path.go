package netutil

import (
	"path/filepath"
	"regexp"
	"strings"
)

// IsSubPath reports whether child is lexically contained in parent once
// both are cleaned and made absolute-comparable. It does not touch the
// filesystem; callers that need symlink resolution must resolve both
// paths first.
func IsSubPath(child, parent string) bool {
	child = filepath.Clean(child)
	parent = filepath.Clean(parent)
	if child == parent {
		return true
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename replaces any run of characters outside
// [A-Za-z0-9._-] with a single underscore.
func SanitizeFilename(s string) string {
	out := unsafeFilenameChars.ReplaceAllString(s, "_")
	if out == "" {
		return "_"
	}
	return out
}
