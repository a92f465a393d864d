package fileorigin

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"exposemgr/internal/domain"
	"exposemgr/internal/netutil"
)

// StatsSink receives the byte count of each served response.
type StatsSink interface {
	RecordBytesSent(n int64)
}

// LogSink receives one line per served request for the session's log
// ring.
type LogSink interface {
	Log(component domain.LogComponent, line string)
}

// DownloadSink is notified after every successful file/bundle response
// (not explorer pages, not HEAD, not 4xx/5xx), so the manager can bump
// stats.downloads and enqueue an async stop once maxDownloads is reached.
type DownloadSink interface {
	RecordDownload(bytesSent int64)
}

// textLikeMIMEs enumerates additional MIME types treated as text for
// the raw-presentation override, beyond the text/* prefix.
var textLikeMIMEs = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-yaml":     true,
	"application/toml":       true,
}

func isTextLikeMIME(m string) bool {
	m, _, _ = strings.Cut(m, ";")
	m = strings.TrimSpace(m)
	if strings.HasPrefix(m, "text/") {
		return true
	}
	if strings.HasSuffix(m, "+json") || strings.HasSuffix(m, "+xml") {
		return true
	}
	return textLikeMIMEs[m]
}

var markdownExtensions = map[string]bool{
	".md":  true,
	".rmd": true,
	".qmd": true,
}

// Origin is the static file HTTP origin: it serves a workspace's
// manifest through ranged GET/HEAD, a root explorer or single-file
// shortcut, markdown preview, and (in zip mode) a bundle download.
type Origin struct {
	WorkspaceDir string
	Manifest     []domain.ManifestEntry
	Mode         domain.FilesMode
	Presentation domain.Presentation
	ExplorerName string

	Stats    StatsSink
	Logs     LogSink
	Download DownloadSink
	Log      *slog.Logger
}

// New builds an Origin over workspaceDir per the built manifest.
func New(workspaceDir string, manifest []domain.ManifestEntry, mode domain.FilesMode, presentation domain.Presentation, explorerName string, stats StatsSink, logs LogSink, download DownloadSink, log *slog.Logger) *Origin {
	return &Origin{
		WorkspaceDir: workspaceDir,
		Manifest:     manifest,
		Mode:         mode,
		Presentation: presentation,
		ExplorerName: explorerName,
		Stats:        stats,
		Logs:         logs,
		Download:     download,
		Log:          log,
	}
}

func (o *Origin) log(line string) {
	if o.Logs != nil {
		o.Logs.Log(domain.LogOrigin, line)
	}
}

// ServeHTTP dispatches a GET/HEAD request to the explorer, a single
// manifest entry, or the zip bundle. Request counters and access control
// are the responsibility of the middleware wrapping this handler.
func (o *Origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	if r.URL.Path == "/" {
		o.serveRoot(w, r)
		return
	}

	o.serveRelative(w, r, strings.TrimPrefix(r.URL.Path, "/"))
}

func (o *Origin) serveRoot(w http.ResponseWriter, r *http.Request) {
	if o.Mode == domain.FilesModeZip {
		o.serveExplorer(w, r)
		return
	}

	if single := o.soleRegularFile(); single != nil && o.Presentation == domain.PresentationPreview {
		o.serveManifestEntry(w, r, *single)
		return
	}
	o.serveExplorer(w, r)
}

// soleRegularFile returns the workspace's only manifest entry when there
// is exactly one (excluding the synthetic "download.zip" entry, which
// only exists in zip mode and never reaches this path).
func (o *Origin) soleRegularFile() *domain.ManifestEntry {
	if len(o.Manifest) != 1 {
		return nil
	}
	return &o.Manifest[0]
}

func (o *Origin) serveExplorer(w http.ResponseWriter, r *http.Request) {
	title := o.ExplorerName
	if title == "" {
		title = "Shared files"
	}
	body := RenderExplorer(title, o.Manifest)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	o.log("GET / -> explorer")
}

func (o *Origin) serveRelative(w http.ResponseWriter, r *http.Request, relPath string) {
	if relPath == "download.zip" && o.Mode == domain.FilesModeZip {
		entry, ok := o.lookupManifestEntry("download.zip")
		if !ok {
			writeJSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		o.serveFile(w, r, filepath.Join(o.WorkspaceDir, BundleFileName), entry, false)
		return
	}

	entry, ok := o.lookupManifestEntry(relPath)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	o.serveManifestEntry(w, r, entry)
}

func (o *Origin) lookupManifestEntry(relPath string) (domain.ManifestEntry, bool) {
	for _, e := range o.Manifest {
		if e.Name == relPath || e.RelativeURL == relPath {
			return e, true
		}
	}
	return domain.ManifestEntry{}, false
}

func (o *Origin) serveManifestEntry(w http.ResponseWriter, r *http.Request, entry domain.ManifestEntry) {
	fsPath := filepath.Join(o.WorkspaceDir, filepath.FromSlash(entry.Name))
	if !netutil.IsSubPath(fsPath, o.WorkspaceDir) {
		writeJSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	o.serveFile(w, r, fsPath, entry, true)
}

// serveFile writes fsPath's content, applying the markdown-preview
// override, MIME/content-disposition rules, and range handling.
// allowMarkdownPreview is false for the zip bundle, which is never
// rendered.
func (o *Origin) serveFile(w http.ResponseWriter, r *http.Request, fsPath string, entry domain.ManifestEntry, allowMarkdownPreview bool) {
	f, err := os.Open(fsPath)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}

	ext := strings.ToLower(filepath.Ext(entry.Name))
	if allowMarkdownPreview && o.Presentation == domain.PresentationPreview && markdownExtensions[ext] {
		o.serveMarkdownPreview(w, r, f, entry)
		return
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if o.Presentation == domain.PresentationRaw && isTextLikeMIME(mimeType) {
		mimeType = "text/plain; charset=utf-8"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	setContentDisposition(w, o.Presentation, filepath.Base(entry.Name))

	size := info.Size()
	start, end, hasRange, malformed := parseRange(r.Header.Get("Range"), size)
	if malformed {
		writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, "invalid_range", nil)
		return
	}

	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusPartialContent)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		n := o.copyRange(w, f, start, end)
		o.recordDownload(n)
		o.log(fmt.Sprintf("%s %s -> 206 (%d-%d/%d)", r.Method, r.URL.Path, start, end, size))
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	n, _ := io.Copy(w, f)
	o.recordDownload(n)
	o.log(fmt.Sprintf("%s %s -> 200 (%d bytes)", r.Method, r.URL.Path, n))
}

func (o *Origin) copyRange(w io.Writer, f io.ReadSeeker, start, end int64) int64 {
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return 0
	}
	n, _ := io.CopyN(w, f, end-start+1)
	return n
}

func (o *Origin) recordDownload(n int64) {
	if o.Stats != nil {
		o.Stats.RecordBytesSent(n)
	}
	if o.Download != nil {
		o.Download.RecordDownload(n)
	}
}

func (o *Origin) serveMarkdownPreview(w http.ResponseWriter, r *http.Request, f io.Reader, entry domain.ManifestEntry) {
	raw, err := io.ReadAll(f)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	body := RenderMarkdown(StripFrontMatter(string(raw)))
	page := PageHTML(filepath.Base(entry.Name), body)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(page)
	o.recordDownload(int64(n))
	o.log(fmt.Sprintf("%s %s -> 200 (markdown preview)", r.Method, r.URL.Path))
}

// setContentDisposition applies the presentation rule: inline for
// preview, attachment for download, omitted entirely for raw.
func setContentDisposition(w http.ResponseWriter, presentation domain.Presentation, filename string) {
	var disposition string
	switch presentation {
	case domain.PresentationPreview:
		disposition = "inline"
	case domain.PresentationRaw:
		return
	default:
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`,
		disposition, netutil.SanitizeFilename(filename), rfc5987Escape(filename)))
}

func rfc5987Escape(s string) string {
	var b strings.Builder
	for _, r := range []byte(s) {
		if isRFC5987Unreserved(r) {
			b.WriteByte(r)
		} else {
			fmt.Fprintf(&b, "%%%02X", r)
		}
	}
	return b.String()
}

func isRFC5987Unreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case strings.ContainsRune("-._~", rune(b)):
		return true
	default:
		return false
	}
}

// parseRange parses a "bytes=a-b" Range header against size: a defaults
// to 0, b defaults to size-1; 0<=a<=b<size is valid.
// hasRange is false (no error) when header is absent; malformed is true
// when present but invalid, signalling a 416.
func parseRange(header string, size int64) (start, end int64, hasRange, malformed bool) {
	if header == "" {
		return 0, 0, false, false
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false, true
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false, true
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false, true
	}
	startStr, endStr := parts[0], parts[1]

	var a, b int64
	var err error
	if startStr == "" {
		a = 0
	} else {
		a, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, false, true
		}
	}
	if endStr == "" {
		b = size - 1
	} else {
		b, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, false, true
		}
	}

	if a < 0 || b < a || b >= size {
		return 0, 0, false, true
	}
	return a, b, true, false
}

func writeJSONError(w http.ResponseWriter, status int, kind string, extra map[string]any) {
	body := map[string]any{"error": kind}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
