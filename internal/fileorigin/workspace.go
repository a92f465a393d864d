// Package fileorigin implements the static file origin: workspace
// construction from user-supplied inputs, manifest building,
// ranged/markdown/zip serving, and the explorer listing view.
package fileorigin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"exposemgr/internal/domain"
	"exposemgr/internal/netutil"
	"exposemgr/internal/policy"
)

// IgnoreChecker is the subset of policy.IgnoreMatcher the workspace
// builder depends on.
type IgnoreChecker interface {
	MatchCandidate(cwdRel, rootRel, base string, isDir bool) bool
}

// RejectedInput records why one user-supplied path was refused.
type RejectedInput struct {
	Path   string
	Reason string
}

// BuildWorkspace resolves each input to a real path, rejects it if it's
// ignored, outside the allowed roots, or neither a file nor a directory,
// and copies accepted inputs into workspaceDir under a sanitized,
// collision-resolved base name.
func BuildWorkspace(workspaceDir string, inputs []string, ignore IgnoreChecker, allowedRoots []string) (accepted []string, rejected []RejectedInput, err error) {
	if err := os.MkdirAll(workspaceDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create workspace: %w", err)
	}

	usedNames := map[string]bool{}
	for _, input := range inputs {
		real, statErr := filepath.EvalSymlinks(input)
		if statErr != nil {
			rejected = append(rejected, RejectedInput{Path: input, Reason: statErr.Error()})
			continue
		}
		info, statErr := os.Stat(real)
		if statErr != nil {
			rejected = append(rejected, RejectedInput{Path: input, Reason: statErr.Error()})
			continue
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			rejected = append(rejected, RejectedInput{Path: input, Reason: "neither a file nor a directory"})
			continue
		}

		base := filepath.Base(real)
		if ignore != nil && ignore.MatchCandidate(real, "", base, info.IsDir()) {
			rejected = append(rejected, RejectedInput{Path: input, Reason: "ignored by policy"})
			continue
		}
		if len(allowedRoots) > 0 && !withinAnyRoot(real, allowedRoots) {
			rejected = append(rejected, RejectedInput{Path: input, Reason: "outside allowed path roots"})
			continue
		}

		name := uniqueName(netutil.SanitizeFilename(base), usedNames)
		usedNames[name] = true
		dest := filepath.Join(workspaceDir, name)

		if info.IsDir() {
			if err := copyDir(real, dest); err != nil {
				rejected = append(rejected, RejectedInput{Path: input, Reason: err.Error()})
				continue
			}
		} else {
			if err := copyFile(real, dest, info.Mode()); err != nil {
				rejected = append(rejected, RejectedInput{Path: input, Reason: err.Error()})
				continue
			}
		}
		accepted = append(accepted, name)
	}
	return accepted, rejected, nil
}

func withinAnyRoot(p string, roots []string) bool {
	for _, root := range roots {
		if netutil.IsSubPath(p, root) {
			return true
		}
	}
	return false
}

func uniqueName(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

// BuildManifest walks workspaceDir recursively, producing a
// ManifestEntry for every regular file with its POSIX-relative name,
// size, SHA-256, URL-encoded relative URL, and mtime. In zip mode the
// per-file walk is only used to build "_cfshare_bundle.zip"; the
// manifest returned to callers collapses to that single bundle entry, so
// the explorer and Get responses never expose the individual files
// underneath a bundled download.
func BuildManifest(workspaceDir string, mode domain.FilesMode) ([]domain.ManifestEntry, error) {
	entries, err := walkManifestEntries(workspaceDir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if mode != domain.FilesModeZip {
		return entries, nil
	}

	if err := WriteBundleZip(workspaceDir, entries); err != nil {
		return nil, err
	}
	bundlePath := filepath.Join(workspaceDir, BundleFileName)
	info, err := os.Stat(bundlePath)
	if err != nil {
		return nil, err
	}
	sum, err := sha256File(bundlePath)
	if err != nil {
		return nil, err
	}
	return []domain.ManifestEntry{{
		Name:        "download.zip",
		Size:        info.Size(),
		SHA256:      sum,
		RelativeURL: "download.zip",
		ModifiedAt:  info.ModTime(),
	}}, nil
}

func walkManifestEntries(workspaceDir string) ([]domain.ManifestEntry, error) {
	var entries []domain.ManifestEntry
	err := filepath.WalkDir(workspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(workspaceDir, path)
		if err != nil {
			return err
		}
		relPosix := filepath.ToSlash(rel)
		if relPosix == BundleFileName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := sha256File(path)
		if err != nil {
			return err
		}

		entries = append(entries, domain.ManifestEntry{
			Name:        relPosix,
			Size:        info.Size(),
			SHA256:      sum,
			RelativeURL: encodeRelativeURL(relPosix),
			ModifiedAt:  info.ModTime(),
		})
		return nil
	})
	return entries, err
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeRelativeURL(relPosix string) string {
	parts := strings.Split(relPosix, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Compile-time check that *policy.IgnoreMatcher satisfies IgnoreChecker;
// BuildWorkspace itself depends only on the interface, for testability.
var _ IgnoreChecker = (*policy.IgnoreMatcher)(nil)
