package manager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/fileorigin"
	"exposemgr/internal/tunnel"
)

// ExposeFiles builds the sanitized workspace and manifest, stands up
// the static file origin on an ephemeral port wrapped directly by the
// access middleware (files origins own their own HTTP server, so
// there is no separate local service to proxy in front of — wrapping
// in place avoids a pointless loopback hop), and starts the tunnel
// agent. The session enters the table as "starting" before the origin
// and tunnel come up and becomes "running" only once every step has
// succeeded; a failed step removes it again.
func (m *Manager) ExposeFiles(ctx context.Context, req domain.ExposeFilesRequest) (domain.ExposeFilesResult, error) {
	const op = "expose_files"

	if len(req.Paths) == 0 {
		return domain.ExposeFilesResult{}, domain.NewError(domain.KindInvalidInput, op, "no paths provided")
	}

	pv := m.policyView()
	now := m.clock.Now()
	ttl := pv.policy.EffectiveTTL(req.Opts.TTLSeconds)
	mode, protect := resolveAccess(req.Opts.Access, req.Opts.ProtectOrigin, pv.policy.DefaultExposeFilesAccess)
	accessInfo, err := generateAccessInfo(mode)
	if err != nil {
		return domain.ExposeFilesResult{}, domain.WrapError(domain.KindInternal, op, err)
	}

	id, err := domain.NewSessionID("files", now)
	if err != nil {
		return domain.ExposeFilesResult{}, domain.WrapError(domain.KindInternal, op, err)
	}

	presentation := req.Opts.Presentation
	if presentation == "" {
		presentation = domain.PresentationDefault
	}
	filesMode := req.Opts.Mode
	if filesMode == "" {
		filesMode = domain.FilesModeNormal
	}

	workspaceDir := filepath.Join(m.cfg.workspacesDir(), id)
	accepted, rejected, err := fileorigin.BuildWorkspace(workspaceDir, req.Paths, pv.ignore, pv.policy.AllowedPathRoots)
	if err != nil {
		return domain.ExposeFilesResult{}, domain.WrapError(domain.KindInternal, op, err)
	}
	if len(accepted) == 0 {
		_ = os.RemoveAll(workspaceDir)
		return domain.ExposeFilesResult{Rejected: convertRejected(rejected)},
			domain.NewError(domain.KindInvalidInput, op, "no inputs were accepted")
	}

	manifest, err := fileorigin.BuildManifest(workspaceDir, filesMode)
	if err != nil {
		_ = os.RemoveAll(workspaceDir)
		return domain.ExposeFilesResult{}, domain.WrapError(domain.KindInternal, op, err)
	}

	session := &domain.Session{
		ID:             id,
		Type:           domain.SessionTypeFiles,
		Status:         domain.StatusStarting,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(ttl) * time.Second),
		TTLSecs:        ttl,
		WorkspaceDir:   workspaceDir,
		Mode:           filesMode,
		Presentation:   presentation,
		Manifest:       manifest,
		Access:         accessInfo,
		ProtectOrigin:  protect,
		AllowlistPaths: req.Opts.AllowlistPaths,
		MaxDownloads:   req.Opts.MaxDownloads,
		Logs:           domain.NewLogRing(),
	}
	ls := newLiveSession(session)
	ls.stats = &statsRecorder{maxDownloads: req.Opts.MaxDownloads}
	ls.stats.onQuotaReached = func() {
		_, _ = m.terminate(id, domain.StatusStopped, "max_downloads_reached")
	}
	m.registerSession(ls)

	origin := fileorigin.New(workspaceDir, manifest, filesMode, presentation, "", ls.stats, ls, ls.stats, m.log)

	originPort, err := m.startOriginServer(ls, origin, pv)
	if err != nil {
		m.failStartup(ls, nil)
		_ = os.RemoveAll(workspaceDir)
		return domain.ExposeFilesResult{}, err
	}
	ls.setOriginPort(originPort)

	handle, err := m.tunnelSup.Start(ctx, tunnel.Args{
		LocalPort:     originPort,
		EdgeIPVersion: string(pv.policy.Tunnel.EdgeIPVersion),
		Protocol:      string(pv.policy.Tunnel.Protocol),
	}, ls)
	if err != nil {
		m.failStartup(ls, handle)
		_ = os.RemoveAll(workspaceDir)
		return domain.ExposeFilesResult{}, err.(*domain.Error).WithSession(id)
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
		Type:      domain.SessionTypeFiles,
		Details:   map[string]any{"fileCount": len(manifest), "publicUrl": handle.PublicURL},
	})
	m.persistSnapshot()

	return domain.ExposeFilesResult{Snapshot: ls.snapshot(), Rejected: convertRejected(rejected)}, nil
}

func convertRejected(in []fileorigin.RejectedInput) []domain.RejectedInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.RejectedInput, len(in))
	for i, r := range in {
		out[i] = domain.RejectedInput{Path: r.Path, Reason: r.Reason}
	}
	return out
}
