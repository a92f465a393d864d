package audit

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"exposemgr/internal/domain"
)

// RunGC removes every subdirectory of <stateDir>/workspaces not
// referenced by a live session, then reads the last snapshot and
// SIGTERMs any recorded PID that is alive but not in the live table.
// liveIDs and livePIDs are snapshots the manager takes under its lock
// before calling in, so RunGC never iterates the live session table
// directly.
func (s *Store) RunGC(liveIDs map[string]bool, livePIDs map[int]bool, now time.Time) (domain.GCResult, error) {
	result := domain.GCResult{}

	workspacesRoot := filepath.Join(s.stateDir, "workspaces")
	entries, err := os.ReadDir(workspacesRoot)
	if err != nil && !os.IsNotExist(err) {
		return result, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if liveIDs[entry.Name()] {
			continue
		}
		path := filepath.Join(workspacesRoot, entry.Name())
		if err := os.RemoveAll(path); err == nil {
			result.RemovedWorkspaces = append(result.RemovedWorkspaces, path)
		}
	}

	snapshot, err := s.ReadSnapshot()
	if err != nil {
		return result, err
	}
	for _, session := range snapshot {
		if session.ProcessPID == 0 || livePIDs[session.ProcessPID] {
			continue
		}
		if processAlive(session.ProcessPID) {
			_ = syscall.Kill(session.ProcessPID, syscall.SIGTERM)
			result.KilledPIDs = append(result.KilledPIDs, session.ProcessPID)
		}
	}

	s.Append(domain.AuditEvent{
		Timestamp: now,
		Event:     domain.EventGCRun,
		Details: map[string]any{
			"removedWorkspaces": len(result.RemovedWorkspaces),
			"killedPids":        len(result.KilledPIDs),
		},
	})
	return result, nil
}

// processAlive probes liveness with signal 0, the POSIX idiom for
// "does this PID exist" without actually signalling it.
func processAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
