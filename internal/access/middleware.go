package access

import (
	"net/http"
	"time"
)

// BlockEvent reports a single denied request to an audit hook.
type BlockEvent struct {
	Kind       string
	Path       string
	Method     string
	RemoteAddr string
}

// StatsSink receives the per-request counters every incoming request
// updates, regardless of whether it is ultimately let through.
type StatsSink interface {
	RecordRequest()
	LastAccessAt(t time.Time)
}

// Middleware composes the rate limiter, path allow-list, and
// authorization checks in that order, invoking OnBlock for every denial
// before writing the response.
type Middleware struct {
	State       State
	RateLimiter *RateLimiter
	Stats       StatsSink
	OnBlock     func(BlockEvent)
}

// Wrap returns next guarded by the three predicates, in order. Every
// request bumps the session's counters first, whether or not it clears
// any of the checks below — a blocked request still counts as traffic.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Stats != nil {
			m.Stats.RecordRequest()
			m.Stats.LastAccessAt(time.Now())
		}
		if m.RateLimiter != nil {
			if d := m.RateLimiter.CheckRateLimit(ClientIP(r)); d != nil {
				m.block("rate_limited", r)
				d.writeJSON(w)
				return
			}
		}
		if d := CheckPathAllowed(r.URL.Path, m.State.AllowlistPaths); d != nil {
			m.block("path_not_allowed", r)
			d.writeJSON(w)
			return
		}
		if d := Authorize(r, m.State); d != nil {
			m.block("unauthorized", r)
			d.writeJSON(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) block(kind string, r *http.Request) {
	if m.OnBlock == nil {
		return
	}
	m.OnBlock(BlockEvent{
		Kind:       kind,
		Path:       r.URL.Path,
		Method:     r.Method,
		RemoteAddr: ClientIP(r),
	})
}
