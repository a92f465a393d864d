// Package access implements the origin-side authorization, path
// allow-listing, and rate-limiting predicates, composed into a single
// ordered middleware with an OnBlock hook for auditing denials.
package access

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"exposemgr/internal/domain"
)

// State is the per-session access configuration a request is checked
// against.
type State struct {
	Mode           domain.AccessMode
	Token          string
	Username       string
	Password       string
	ProtectOrigin  bool
	AllowlistPaths []string
}

// Denial describes why a request was rejected, carrying enough detail to
// render the JSON error body and to report to an audit hook.
type Denial struct {
	Status int
	Kind   domain.Kind
	Body   map[string]any
	Header http.Header
}

// writeJSON renders the denial as a {error: <kind>, ...} body.
func (d *Denial) writeJSON(w http.ResponseWriter) {
	for k, vs := range d.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d.Body)
}

// Authorize checks r against state's authorization mode. A nil return
// means the request is allowed.
func Authorize(r *http.Request, state State) *Denial {
	if state.Mode == domain.AccessNone || !state.ProtectOrigin {
		return nil
	}

	switch state.Mode {
	case domain.AccessToken:
		if tokenMatches(r, state.Token) {
			return nil
		}
		return &Denial{
			Status: http.StatusUnauthorized,
			Kind:   domain.KindUnauthorized,
			Body:   map[string]any{"error": "unauthorized"},
		}
	case domain.AccessBasic:
		user, pass, ok := r.BasicAuth()
		if ok && constTimeEqual(user, state.Username) && constTimeEqual(pass, state.Password) {
			return nil
		}
		return &Denial{
			Status: http.StatusUnauthorized,
			Kind:   domain.KindUnauthorized,
			Body:   map[string]any{"error": "unauthorized"},
			Header: http.Header{"Www-Authenticate": []string{`Basic realm="cfshare"`}},
		}
	default:
		return nil
	}
}

func tokenMatches(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	if q := r.URL.Query().Get("token"); q != "" && constTimeEqual(q, token) {
		return true
	}
	if h := r.Header.Get("X-Cfshare-Token"); h != "" && constTimeEqual(h, token) {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		bearer := strings.TrimPrefix(auth, "Bearer ")
		if constTimeEqual(bearer, token) {
			return true
		}
	}
	return false
}

// constTimeEqual compares two strings without leaking timing information
// through early-exit byte comparison.
func constTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a constant-time compare against a same-length
		// placeholder so we don't short-circuit on the common case of
		// mismatched lengths either.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CheckPathAllowed enforces the allow-list: empty allow-list means allow
// all; otherwise the request path must equal or be a "/"-delimited
// descendant of one of the listed prefixes.
func CheckPathAllowed(requestPath string, allowlist []string) *Denial {
	if len(allowlist) == 0 {
		return nil
	}
	for _, prefix := range allowlist {
		if requestPath == prefix || strings.HasPrefix(requestPath, strings.TrimSuffix(prefix, "/")+"/") {
			return nil
		}
	}
	return &Denial{
		Status: http.StatusForbidden,
		Kind:   domain.KindPathNotAllowed,
		Body:   map[string]any{"error": "path_not_allowed", "path": requestPath},
	}
}

// ClientIP extracts the request's remote address without the port, the
// key the rate limiter shards on.
func ClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i+1:], "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
