package manager

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/netutil"
	"exposemgr/internal/proxyorigin"
	"exposemgr/internal/tunnel"
)

// ExposePort validates the requested port against policy, probes that
// something is actually listening on it, and brings up the tunnel. When
// the session needs access control — origin protection is on, an
// allow-list was requested, or the rate limiter is enabled — a
// reverse-proxy origin is inserted on an ephemeral port so the middleware
// has somewhere to sit; otherwise the tunnel is pointed straight at the
// caller's port and no extra hop is created. The session enters the
// table as "starting" before bring-up and becomes "running" only once
// every step has succeeded; a failed step removes it again.
func (m *Manager) ExposePort(ctx context.Context, req domain.ExposePortRequest) (domain.ExposePortResult, error) {
	const op = "expose_port"

	if req.Port < 1 || req.Port > 65535 {
		return domain.ExposePortResult{}, domain.NewError(domain.KindInvalidInput, op, "port %d out of range", req.Port)
	}

	pv := m.policyView()
	if pv.policy.IsPortBlocked(req.Port) {
		return domain.ExposePortResult{}, domain.NewError(domain.KindPolicyViolation, op, "port %d is blocked by policy", req.Port)
	}
	if !netutil.ProbeLocalPort(req.Port) {
		return domain.ExposePortResult{}, domain.NewError(domain.KindLocalUnreachable, op, "nothing listening on 127.0.0.1:%d", req.Port)
	}

	now := m.clock.Now()
	ttl := pv.policy.EffectiveTTL(req.Opts.TTLSeconds)
	mode, protect := resolveAccess(req.Opts.Access, req.Opts.ProtectOrigin, pv.policy.DefaultExposePortAccess)
	accessInfo, err := generateAccessInfo(mode)
	if err != nil {
		return domain.ExposePortResult{}, domain.WrapError(domain.KindInternal, op, err)
	}

	id, err := domain.NewSessionID("port", now)
	if err != nil {
		return domain.ExposePortResult{}, domain.WrapError(domain.KindInternal, op, err)
	}

	session := &domain.Session{
		ID:             id,
		Type:           domain.SessionTypePort,
		Status:         domain.StatusStarting,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(ttl) * time.Second),
		TTLSecs:        ttl,
		SourcePort:     req.Port,
		LocalURL:       fmt.Sprintf("http://127.0.0.1:%d", req.Port),
		Access:         accessInfo,
		ProtectOrigin:  protect,
		AllowlistPaths: req.Opts.AllowlistPaths,
		Logs:           domain.NewLogRing(),
	}
	ls := newLiveSession(session)
	ls.stats = &statsRecorder{}
	m.registerSession(ls)

	needsOrigin := protect || len(req.Opts.AllowlistPaths) > 0 || pv.policy.RateLimit.Enabled

	tunnelPort := req.Port
	if needsOrigin {
		upstream, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", req.Port))
		if err != nil {
			m.failStartup(ls, nil)
			return domain.ExposePortResult{}, domain.WrapError(domain.KindInternal, op, err)
		}
		proxy := proxyorigin.New(upstream, m.transport, ls.stats, ls, m.log)

		originPort, err := m.startOriginServer(ls, proxy, pv)
		if err != nil {
			m.failStartup(ls, nil)
			return domain.ExposePortResult{}, err
		}
		ls.setOriginPort(originPort)
		tunnelPort = originPort
	}

	handle, err := m.tunnelSup.Start(ctx, tunnel.Args{
		LocalPort:     tunnelPort,
		EdgeIPVersion: string(pv.policy.Tunnel.EdgeIPVersion),
		Protocol:      string(pv.policy.Tunnel.Protocol),
	}, ls)
	if err != nil {
		m.failStartup(ls, handle)
		return domain.ExposePortResult{}, err.(*domain.Error).WithSession(id)
	}

	ls.mu.Lock()
	ls.tunnelHandle = handle
	ls.mu.Unlock()
	ls.setRunning(handle.PublicURL, handle.PID())

	m.watchTunnelExit(id, handle)

	m.auditStore.Append(domain.AuditEvent{
		Timestamp: now,
		Event:     domain.EventExposureStarted,
		ID:        id,
		Type:      domain.SessionTypePort,
		Details:   map[string]any{"sourcePort": req.Port, "publicUrl": handle.PublicURL},
	})
	m.persistSnapshot()

	return domain.ExposePortResult{Snapshot: ls.snapshot()}, nil
}
