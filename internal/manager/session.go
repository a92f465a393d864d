package manager

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/tunnel"
)

// liveSession is the manager's in-memory record for one exposure: a
// domain.Session plus every OS resource the session table exclusively
// owns. mu guards the fields below it and is the single per-session
// critical section that makes the terminal transition run exactly
// once regardless of which of the concurrent termination sources (TTL
// reaper, user stop, child exit, or download quota) gets there first.
type liveSession struct {
	session *domain.Session

	mu       sync.Mutex
	terminal bool

	ctx    context.Context
	cancel context.CancelFunc

	tunnelHandle  *tunnel.Handle
	originServers []*http.Server
	originLis     []net.Listener

	stats *statsRecorder
	logs  *domain.LogRing
}

func newLiveSession(s *domain.Session) *liveSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &liveSession{
		session: s,
		ctx:     ctx,
		cancel:  cancel,
		logs:    s.Logs,
	}
}

// logLine appends one line to the session's bounded log ring.
func (ls *liveSession) logLine(component domain.LogComponent, line string) {
	ls.logs.Append(domain.LogEntry{Timestamp: time.Now(), Component: component, Line: line})
}

// Log implements the proxyorigin/fileorigin/tunnel LogSink interfaces so a
// liveSession can be passed directly wherever one of them is needed.
func (ls *liveSession) Log(component domain.LogComponent, line string) {
	ls.logLine(component, line)
}

// snapshot copies the fields safe to expose outside the manager, pulling
// the live counters out of stats under its own lock.
func (ls *liveSession) snapshot() domain.Snapshot {
	ls.mu.Lock()
	s := *ls.session
	ls.mu.Unlock()

	if ls.stats != nil {
		requests, downloads, bytesSent, lastAccess := ls.stats.snapshot()
		s.Stats = domain.Stats{
			Requests:     requests,
			Downloads:    downloads,
			BytesSent:    bytesSent,
			LastAccessAt: lastAccess,
		}
	}
	return s.Snapshot()
}

func (ls *liveSession) persisted() domain.PersistedSession {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	pid := 0
	if ls.tunnelHandle != nil {
		pid = ls.tunnelHandle.PID()
	}
	return domain.PersistedSession{
		ID:           ls.session.ID,
		Type:         ls.session.Type,
		Status:       ls.session.Status,
		ExpiresAt:    ls.session.ExpiresAt,
		WorkspaceDir: ls.session.WorkspaceDir,
		ProcessPID:   pid,
	}
}

func (ls *liveSession) setStatus(status domain.SessionStatus) {
	ls.mu.Lock()
	ls.session.Status = status
	ls.mu.Unlock()
}

func (ls *liveSession) setPublicURL(url string) {
	ls.mu.Lock()
	ls.session.PublicURL = url
	ls.mu.Unlock()
}

func (ls *liveSession) setLastError(msg string) {
	ls.mu.Lock()
	ls.session.LastError = msg
	ls.mu.Unlock()
}

func (ls *liveSession) setProcessPID(pid int) {
	ls.mu.Lock()
	ls.session.ProcessPID = pid
	ls.mu.Unlock()
}

func (ls *liveSession) setOriginPort(port int) {
	ls.mu.Lock()
	ls.session.OriginPort = port
	ls.mu.Unlock()
}

func (ls *liveSession) setLocalURL(url string) {
	ls.mu.Lock()
	ls.session.LocalURL = url
	ls.mu.Unlock()
}

func (ls *liveSession) setRunning(publicURL string, pid int) {
	ls.mu.Lock()
	ls.session.Status = domain.StatusRunning
	ls.session.PublicURL = publicURL
	ls.session.ProcessPID = pid
	ls.mu.Unlock()
}

func (ls *liveSession) status() domain.SessionStatus {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.session.Status
}
