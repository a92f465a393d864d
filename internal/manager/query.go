package manager

import (
	"net/http"
	"time"

	"exposemgr/internal/domain"
)

// maxManifestPage bounds the per-session payload a Get response returns:
// a longer manifest is cut to this many entries and the result is
// flagged Truncated.
const maxManifestPage = 200

// probeTimeout bounds Manager.Get's optional public-reachability probe.
const probeTimeout = 3 * time.Second

// Get resolves req's three accepted input shapes (single id, id list, or
// filter — "all" expands to every session), optionally probes each
// session's public URL, and projects the response to req.Fields.
func (m *Manager) Get(req domain.GetRequest) (domain.GetResult, error) {
	ids := m.resolveGetIDs(req)

	m.mu.Lock()
	sessions := make([]*liveSession, 0, len(ids))
	for _, id := range ids {
		if ls, ok := m.sessions[id]; ok {
			sessions = append(sessions, ls)
		}
	}
	m.mu.Unlock()

	truncated := false
	items := make([]domain.GetResultItem, 0, len(sessions))
	for _, ls := range sessions {
		snap := ls.snapshot()
		if len(snap.Manifest) > maxManifestPage {
			snap.Manifest = snap.Manifest[:maxManifestPage]
			truncated = true
		}
		snap = projectFields(snap, req.Fields)

		item := domain.GetResultItem{Snapshot: snap}
		if req.ProbePublic && snap.PublicURL != "" {
			item.Probe = m.probePublic(snap.PublicURL)
		}
		items = append(items, item)
	}

	return domain.GetResult{Sessions: items, Truncated: truncated}, nil
}

// List is Get with no narrowing, returning every session.
func (m *Manager) List() (domain.GetResult, error) {
	return m.Get(domain.GetRequest{})
}

func (m *Manager) resolveGetIDs(req domain.GetRequest) []string {
	switch {
	case req.ID == domain.StopAll:
		return m.allSessionIDs()
	case req.ID != "":
		return []string{req.ID}
	case len(req.IDs) > 0:
		for _, id := range req.IDs {
			if id == domain.StopAll {
				return m.allSessionIDs()
			}
		}
		return req.IDs
	case req.Filter != nil:
		return m.filterSessionIDs(*req.Filter)
	default:
		return m.allSessionIDs()
	}
}

func (m *Manager) filterSessionIDs(filter domain.GetFilter) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, ls := range m.sessions {
		if filter.Type != "" && ls.session.Type != filter.Type {
			continue
		}
		if len(filter.Status) > 0 {
			st := ls.status()
			matched := false
			for _, want := range filter.Status {
				if st == want {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids
}

// projectFields returns a Snapshot carrying only the requested top-level
// fields (plus ID, always kept so results remain correlatable). An empty
// fields list means "everything".
func projectFields(snap domain.Snapshot, fields []string) domain.Snapshot {
	if len(fields) == 0 {
		return snap
	}
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}

	out := domain.Snapshot{ID: snap.ID}
	if want["type"] {
		out.Type = snap.Type
	}
	if want["status"] {
		out.Status = snap.Status
	}
	if want["createdAt"] {
		out.CreatedAt = snap.CreatedAt
	}
	if want["expiresAt"] {
		out.ExpiresAt = snap.ExpiresAt
	}
	if want["sourcePort"] {
		out.SourcePort = snap.SourcePort
	}
	if want["originPort"] {
		out.OriginPort = snap.OriginPort
	}
	if want["workspaceDir"] {
		out.WorkspaceDir = snap.WorkspaceDir
	}
	if want["mode"] {
		out.Mode = snap.Mode
	}
	if want["presentation"] {
		out.Presentation = snap.Presentation
	}
	if want["manifest"] {
		out.Manifest = snap.Manifest
	}
	if want["publicUrl"] {
		out.PublicURL = snap.PublicURL
	}
	if want["localUrl"] {
		out.LocalURL = snap.LocalURL
	}
	if want["accessInfo"] {
		out.Access = snap.Access
	}
	if want["protectOrigin"] {
		out.ProtectOrigin = snap.ProtectOrigin
	}
	if want["maxDownloads"] {
		out.MaxDownloads = snap.MaxDownloads
	}
	if want["stats"] {
		out.Stats = snap.Stats
	}
	if want["lastError"] {
		out.LastError = snap.LastError
	}
	return out
}

func (m *Manager) probePublic(publicURL string) *domain.ProbeResult {
	client := &http.Client{Transport: m.transport, Timeout: probeTimeout}
	resp, err := client.Head(publicURL)
	if err != nil {
		return &domain.ProbeResult{OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()
	return &domain.ProbeResult{OK: resp.StatusCode < 500, Status: resp.StatusCode}
}

// Logs returns the tail of one session's bounded log ring, filtered by
// component and/or age.
func (m *Manager) Logs(req domain.LogsRequest) (domain.LogsResult, error) {
	m.mu.Lock()
	ls, ok := m.sessions[req.ID]
	m.mu.Unlock()
	if !ok {
		return domain.LogsResult{}, domain.NewError(domain.KindNotFound, "logs", "session %s not found", req.ID)
	}

	n := req.N
	switch {
	case n <= 0:
		n = 200
	case n > 1000:
		n = 1000
	}

	var since time.Time
	if req.SinceSeconds > 0 {
		since = m.clock.Now().Add(-time.Duration(req.SinceSeconds) * time.Second)
	}

	return domain.LogsResult{Logs: ls.logs.Tail(n, req.Component, since)}, nil
}
