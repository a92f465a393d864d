package fileorigin

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"exposemgr/internal/domain"
)

// BundleFileName is the fixed zip-mode bundle name.
const BundleFileName = "_cfshare_bundle.zip"

// WriteBundleZip creates workspaceDir/_cfshare_bundle.zip containing
// every entry at its workspace-relative path, excluding the bundle
// itself. archive/zip is stdlib; no third-party zip library appears
// anywhere in the retrieval pack (see DESIGN.md).
func WriteBundleZip(workspaceDir string, entries []domain.ManifestEntry) error {
	dest := filepath.Join(workspaceDir, BundleFileName)
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if e.Name == BundleFileName {
			continue
		}
		if err := addZipEntry(zw, workspaceDir, e.Name); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addZipEntry(zw *zip.Writer, workspaceDir, relName string) error {
	src := filepath.Join(workspaceDir, filepath.FromSlash(relName))
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = relName
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
