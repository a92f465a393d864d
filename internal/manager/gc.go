package manager

import "exposemgr/internal/domain"

// RunGC snapshots the live session table under lock and delegates to
// the audit store's maintenance sweep: orphaned workspace directories
// are removed and any tunnel PID that outlived its session record is
// signalled.
func (m *Manager) RunGC() (domain.GCResult, error) {
	m.mu.Lock()
	liveIDs := make(map[string]bool, len(m.sessions))
	livePIDs := make(map[int]bool, len(m.sessions))
	for id, ls := range m.sessions {
		liveIDs[id] = true
		if pid := ls.persisted().ProcessPID; pid != 0 {
			livePIDs[pid] = true
		}
	}
	m.mu.Unlock()

	result, err := m.auditStore.RunGC(liveIDs, livePIDs, m.clock.Now())
	if err != nil {
		return domain.GCResult{}, domain.WrapError(domain.KindInternal, "run_gc", err)
	}
	return result, nil
}
