package manager

import (
	"os"

	"exposemgr/internal/domain"
)

// terminate is the single guarded critical section that any of
// {reaper, Stop, tunnel-exit watcher, download-quota hook} may enter:
// whichever calls it first wins; every later caller sees ls.terminal
// already set and fails with not_found. It stops the tunnel process and
// origin servers, removes a files session's workspace, persists the
// transition, and drops the session out of the live table.
func (m *Manager) terminate(id string, status domain.SessionStatus, lastErr string) (domain.Snapshot, error) {
	m.mu.Lock()
	ls, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return domain.Snapshot{}, domain.NewError(domain.KindNotFound, "stop", "session %s not found", id)
	}

	ls.mu.Lock()
	if ls.terminal {
		ls.mu.Unlock()
		return domain.Snapshot{}, domain.NewError(domain.KindNotFound, "stop", "session %s already stopped", id)
	}
	ls.terminal = true
	ls.session.Status = status
	if lastErr != "" {
		ls.session.LastError = lastErr
	}
	handle := ls.tunnelHandle
	sessionType := ls.session.Type
	workspaceDir := ls.session.WorkspaceDir
	ls.mu.Unlock()

	ls.cancel()
	if handle != nil {
		m.tunnelSup.Terminate(handle)
	}
	m.teardownOrigin(ls)

	if sessionType == domain.SessionTypeFiles && workspaceDir != "" {
		_ = os.RemoveAll(workspaceDir)
	}

	event := domain.EventExposureStopped
	if status == domain.StatusExpired {
		event = domain.EventExposureExpired
	}
	m.auditStore.Append(domain.AuditEvent{
		Timestamp: m.clock.Now(),
		Event:     event,
		ID:        id,
		Type:      sessionType,
		Details:   map[string]any{"status": string(status), "reason": lastErr},
	})
	m.persistSnapshot()
	m.unregisterSession(id)

	return ls.snapshot(), nil
}

// allSessionIDs snapshots every id currently in the table, for the
// StopAll sentinel.
func (m *Manager) allSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stop terminates one or more sessions: accepts a single id, a list, or
// the "all" sentinel. A files session's workspace is always removed on
// successful stop, so Cleaned mirrors Stopped for that type.
func (m *Manager) Stop(ids []string) domain.StopResult {
	if len(ids) == 1 && ids[0] == domain.StopAll {
		ids = m.allSessionIDs()
	}

	var result domain.StopResult
	for _, id := range ids {
		snap, err := m.terminate(id, domain.StatusStopped, "")
		if err != nil {
			result.Failed = append(result.Failed, domain.StopFailure{ID: id, Error: err.Error()})
			continue
		}
		result.Stopped = append(result.Stopped, id)
		if snap.Type == domain.SessionTypeFiles {
			result.Cleaned = append(result.Cleaned, id)
		}
	}
	return result
}
