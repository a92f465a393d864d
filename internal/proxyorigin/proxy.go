// Package proxyorigin implements a reverse-proxy HTTP origin: a
// forwarder in front of a local upstream, built over a
// net/http.RoundTripper so tests can substitute a fake transport instead
// of a live TCP listener.
package proxyorigin

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"

	"exposemgr/internal/domain"
	"exposemgr/internal/netutil"
)

// StatsSink receives the byte count of each forwarded response.
// Implementations must be safe for concurrent use.
type StatsSink interface {
	RecordBytesSent(n int64)
}

// LogSink receives one line per proxied request/error for the session's
// log ring.
type LogSink interface {
	Log(component domain.LogComponent, line string)
}

// Proxy forwards requests to a fixed local upstream over a
// http.RoundTripper the caller injects (so tests fake the network).
type Proxy struct {
	upstream  *url.URL
	transport http.RoundTripper
	stats     StatsSink
	logs      LogSink
	log       *slog.Logger
	closed    atomic.Bool
}

// New builds a Proxy forwarding to upstream ("http://127.0.0.1:<port>").
func New(upstream *url.URL, transport http.RoundTripper, stats StatsSink, logs LogSink, log *slog.Logger) *Proxy {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Proxy{upstream: upstream, transport: transport, stats: stats, logs: logs, log: log}
}

// ServeHTTP forwards r to the upstream and copies the response back.
// Request accounting (counters, last-access time, access control) is
// handled by the middleware wrapping this handler; ServeHTTP only moves
// bytes and tags each exchange with a correlation id for the logs.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()

	target := *p.upstream
	target.Path = joinPath(p.upstream.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		p.writeProxyError(w, "build_request_failed: "+err.Error())
		return
	}
	outReq.Header = r.Header.Clone()
	netutil.RemoveHopByHopHeadersPreserveUpgrade(outReq.Header)
	outReq.Header.Set("X-Cfshare-Request-Id", correlationID)
	outReq.Host = target.Host
	outReq.ContentLength = r.ContentLength

	resp, err := p.transport.RoundTrip(outReq)
	if err != nil {
		p.writeProxyError(w, "upstream unreachable: "+err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respHeaders := resp.Header.Clone()
	netutil.RemoveHopByHopHeadersPreserveUpgrade(respHeaders)
	for k, vs := range respHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cfshare-Request-Id", correlationID)
	w.WriteHeader(resp.StatusCode)

	// Headers are already sent; an error mid-copy cannot replace the
	// status, so the stream simply ends.
	n, _ := io.Copy(w, resp.Body)
	if p.stats != nil {
		p.stats.RecordBytesSent(n)
	}
	if p.logs != nil {
		p.logs.Log(domain.LogOrigin, correlationID+" "+r.Method+" "+r.URL.Path+" -> "+httpStatusText(resp.StatusCode))
	}
}

func (p *Proxy) writeProxyError(w http.ResponseWriter, detail string) {
	if p.logs != nil {
		p.logs.Log(domain.LogOrigin, "proxy_error: "+detail)
	}
	if p.log != nil {
		p.log.Warn("proxy_error", "detail", detail)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"proxy_error"}`))
}

func joinPath(base, reqPath string) string {
	if base == "" || base == "/" {
		return reqPath
	}
	trimmed := base
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed + reqPath
}

func httpStatusText(code int) string {
	return http.StatusText(code)
}
