package fileorigin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"exposemgr/internal/domain"
)

type statsSink struct {
	bytes int64
}

func (s *statsSink) RecordBytesSent(n int64) { s.bytes += n }

type downloadSink struct {
	calls []int64
}

func (d *downloadSink) RecordDownload(n int64) { d.calls = append(d.calls, n) }

func writeWorkspaceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestServeSingleFilePreviewShortcut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hello")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationPreview, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("expected direct file body, got %q", rec.Body.String())
	}
}

func TestServeExplorerForMultipleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "A")
	writeWorkspaceFile(t, dir, "b.txt", "B")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationPreview, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("expected html content type, got %q", ct)
	}
}

func TestServeZipModeAlwaysShowsExplorerAtRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "A")
	manifest, err := BuildManifest(dir, domain.FilesModeZip)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeZip, domain.PresentationPreview, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("zip mode must always serve the explorer at root, got content-type %q", ct)
	}
}

func TestServeDownloadZipReturnsArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "A")
	writeWorkspaceFile(t, dir, "b.txt", "B")
	manifest, err := BuildManifest(dir, domain.FilesModeZip)
	if err != nil {
		t.Fatal(err)
	}

	downloads := &downloadSink{}
	o := New(dir, manifest, domain.FilesModeZip, domain.PresentationPreview, "", nil, nil, downloads, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download.zip", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty zip body")
	}
	if len(downloads.calls) != 1 {
		t.Fatalf("expected one download recorded, got %d", len(downloads.calls))
	}
}

func TestServeRangeRequest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "0123456789")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/a.txt", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Fatalf("expected body '234', got %q", rec.Body.String())
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 2-4/10" {
		t.Fatalf("unexpected content-range %q", cr)
	}
}

func TestServeRangeOutOfBoundsReturns416(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "01234")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/a.txt", nil)
	req.Header.Set("Range", "bytes=3-10")
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", rec.Code)
	}
}

func TestServeMarkdownPreview(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "readme.md", "---\ntitle: x\n---\n# Hello\n")
	writeWorkspaceFile(t, dir, "other.txt", "x")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationPreview, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readme.md", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("expected html content type, got %q", ct)
	}
	if !contains(rec.Body.String(), "<h1>Hello</h1>") {
		t.Fatalf("expected rendered heading, got %q", rec.Body.String())
	}
}

func TestServeRawPresentationForcesPlainText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "data.json", `{"a":1}`)
	other := "placeholder.txt"
	writeWorkspaceFile(t, dir, other, "x")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationRaw, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("expected raw override to plain text, got %q", ct)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("raw presentation must omit Content-Disposition")
	}
}

func TestServeDownloadPresentationSetsAttachment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hi")
	other := "b.txt"
	writeWorkspaceFile(t, dir, other, "hi2")
	manifest, err := BuildManifest(dir, domain.FilesModeNormal)
	if err != nil {
		t.Fatal(err)
	}

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a.txt", nil))

	cd := rec.Header().Get("Content-Disposition")
	if !contains(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
}

func TestServeMethodNotAllowed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hi")
	manifest, _ := BuildManifest(dir, domain.FilesModeNormal)

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestServeMissingFileReturns404(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hi")
	other := "b.txt"
	writeWorkspaceFile(t, dir, other, "hi2")
	manifest, _ := BuildManifest(dir, domain.FilesModeNormal)

	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.txt", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeRecordsBytesStats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hello")
	other := "b.txt"
	writeWorkspaceFile(t, dir, other, "hi2")
	manifest, _ := BuildManifest(dir, domain.FilesModeNormal)

	stats := &statsSink{}
	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", stats, nil, nil, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a.txt", nil))

	if stats.bytes != 5 {
		t.Fatalf("expected 5 bytes recorded, got %d", stats.bytes)
	}
}

func TestServeDownloadAccountingSkipsHead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceFile(t, dir, "a.txt", "hi")
	other := "b.txt"
	writeWorkspaceFile(t, dir, other, "hi2")
	manifest, _ := BuildManifest(dir, domain.FilesModeNormal)

	downloads := &downloadSink{}
	o := New(dir, manifest, domain.FilesModeNormal, domain.PresentationDefault, "", nil, nil, downloads, nil)
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/a.txt", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(downloads.calls) != 0 {
		t.Fatal("HEAD must not count as a download")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
