package manager

import (
	"net"
	"net/http"

	"exposemgr/internal/access"
	"exposemgr/internal/domain"
	"exposemgr/internal/tunnel"
)

// registerSession publishes ls in the session table, making it visible
// to Get/List/Stop/the reaper.
func (m *Manager) registerSession(ls *liveSession) {
	m.mu.Lock()
	m.sessions[ls.session.ID] = ls
	m.mu.Unlock()
}

// unregisterSession removes the session from the table without touching
// any OS resource; its callers (terminate and failStartup) release those
// first.
func (m *Manager) unregisterSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// rateLimiterFor builds a fresh per-session rate limiter from the
// currently effective policy: each origin enforces its own
// fixed-window limiter.
func (m *Manager) rateLimiterFor(pv *effectivePolicy) *access.RateLimiter {
	rl := pv.policy.RateLimit
	return access.NewRateLimiter(m.clock, rl.Enabled, rl.WindowMs, rl.MaxRequests)
}

// startOriginServer binds an ephemeral 127.0.0.1 port, serves handler
// behind the access middleware derived from ls's session, and records
// the listener/server on ls for later teardown. Returns the bound port.
func (m *Manager) startOriginServer(ls *liveSession, handler http.Handler, pv *effectivePolicy) (int, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, domain.NewError(domain.KindInternal, "expose", "bind origin listener: %s", err)
	}

	mw := &access.Middleware{
		State:       accessState(ls.session),
		RateLimiter: m.rateLimiterFor(pv),
		Stats:       ls.stats,
		OnBlock: func(e access.BlockEvent) {
			ls.logLine(domain.LogManager, "blocked "+string(e.Kind)+" "+e.Method+" "+e.Path)
		},
	}
	server := &http.Server{Handler: mw.Wrap(handler)}

	ls.mu.Lock()
	ls.originServers = append(ls.originServers, server)
	ls.originLis = append(ls.originLis, lis)
	ls.mu.Unlock()

	go func() {
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			ls.logLine(domain.LogOrigin, "origin server exited: "+err.Error())
		}
	}()

	return lis.Addr().(*net.TCPAddr).Port, nil
}

func (m *Manager) teardownOrigin(ls *liveSession) {
	ls.mu.Lock()
	servers := ls.originServers
	ls.mu.Unlock()
	for _, s := range servers {
		_ = s.Close()
	}
}

// failStartup undoes a partially started exposure: origin servers and
// tunnel process are torn down and the "starting" session is dropped
// from the table entirely, with no audit event or snapshot written,
// since it never reached running. Bring-up is all-or-nothing.
func (m *Manager) failStartup(ls *liveSession, handle *tunnel.Handle) {
	if handle != nil {
		m.tunnelSup.Terminate(handle)
	}
	m.teardownOrigin(ls)
	ls.cancel()
	m.unregisterSession(ls.session.ID)
}

// watchTunnelExit terminates a running session with an agent_exit
// error the instant its tunnel process exits on its own: the child
// exiting is itself a termination source.
func (m *Manager) watchTunnelExit(id string, handle *tunnel.Handle) {
	go func() {
		<-handle.Exited()
		m.mu.Lock()
		ls, ok := m.sessions[id]
		m.mu.Unlock()
		if !ok || ls.status().Terminal() {
			return
		}
		_, _ = m.terminate(id, domain.StatusError, "tunnel agent exited while running")
	}()
}

// persistSnapshot writes every live session's reduced form to
// sessions.json. Called after every lifecycle transition.
func (m *Manager) persistSnapshot() {
	m.mu.Lock()
	sessions := make([]domain.PersistedSession, 0, len(m.sessions))
	for _, ls := range m.sessions {
		sessions = append(sessions, ls.persisted())
	}
	m.mu.Unlock()
	if err := m.auditStore.WriteSnapshot(sessions); err != nil {
		m.log.Warn("persist snapshot failed", "error", err)
	}
}
