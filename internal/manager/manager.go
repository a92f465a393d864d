// Package manager implements the session and lifecycle manager and,
// through its exported methods, the public surface: env-check,
// expose-port, expose-files, list/get, stop, logs, maintenance (GC),
// and audit query/export. A Manager value is constructed once per
// process by the adapter and threaded through operations, with an
// injected clock, subprocess launcher, and HTTP round-tripper so
// tests never sleep or spawn real processes.
package manager

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"exposemgr/internal/audit"
	"exposemgr/internal/domain"
	"exposemgr/internal/policy"
	"exposemgr/internal/process"
	"exposemgr/internal/timing"
	"exposemgr/internal/tunnel"
)

// reaperInterval is the reaper sweep period.
const reaperInterval = 30 * time.Second

// effectivePolicy bundles the policy and compiled ignore matcher a
// request is checked against. Manager swaps this pointer atomically
// on policy update rather than taking a lock on every read.
type effectivePolicy struct {
	policy policy.Policy
	ignore *policy.IgnoreMatcher
}

// Manager is the ExposureManager: the session table, state machine,
// and every component it wires together.
type Manager struct {
	cfg       Config
	clock     timing.Clock
	launcher  process.Launcher
	transport http.RoundTripper
	log       *slog.Logger

	policyStore *policy.Store
	effective   atomic.Pointer[effectivePolicy]
	auditStore  *audit.Store
	tunnelSup   *tunnel.Supervisor

	mu       sync.Mutex
	sessions map[string]*liveSession

	reaperTicker timing.Ticker
	reaperDone   chan struct{}
}

// New constructs a Manager, loading policy and starting the reaper
// loop.
func New(cfg Config, clock timing.Clock, launcher process.Launcher, transport http.RoundTripper, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	store := policy.NewStore(cfg.StateDir, cfg.ConfigPatch)
	pol, warnings, ignore, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	for _, w := range warnings {
		log.Warn("policy warning", "detail", w)
	}

	m := &Manager{
		cfg:         cfg,
		clock:       clock,
		launcher:    launcher,
		transport:   transport,
		log:         log,
		policyStore: store,
		auditStore:  audit.New(cfg.StateDir, log),
		tunnelSup:   tunnel.New(launcher, clock, log, cfg.TunnelBinary),
		sessions:    make(map[string]*liveSession),
		reaperDone:  make(chan struct{}),
	}
	m.effective.Store(&effectivePolicy{policy: pol, ignore: ignore})

	m.reaperTicker = clock.NewTicker(reaperInterval)
	go m.reaperLoop()

	return m, nil
}

// Close stops the reaper loop. It does not terminate live sessions.
func (m *Manager) Close() {
	select {
	case <-m.reaperDone:
		return
	default:
	}
	close(m.reaperDone)
	m.reaperTicker.Stop()
}

func (m *Manager) reaperLoop() {
	for {
		select {
		case <-m.reaperDone:
			return
		case <-m.reaperTicker.C():
			m.reapOnce()
		}
	}
}

// reapOnce enumerates a snapshot of the session table and stops every
// running session whose expiresAt has passed. Snapshot-then-act avoids
// mutating the table while iterating it.
func (m *Manager) reapOnce() {
	now := m.clock.Now()
	for _, id := range m.expiredSessionIDs(now) {
		if _, err := m.terminate(id, domain.StatusExpired, "ttl expired"); err != nil {
			m.log.Warn("reaper failed to expire session", "id", id, "error", err)
		}
	}
}

func (m *Manager) expiredSessionIDs(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, ls := range m.sessions {
		if ls.status() == domain.StatusRunning && !ls.session.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *Manager) policyView() *effectivePolicy {
	return m.effective.Load()
}

var tunnelVersionPattern = regexp.MustCompile(`version\s+(\d+\.\d+\.\d+)`)

// EnvCheck resolves the quick-tunnel agent binary and verifies the
// state directory is writable.
func (m *Manager) EnvCheck(ctx context.Context) (domain.EnvCheckResult, error) {
	result := domain.EnvCheckResult{StateDir: m.cfg.StateDir}

	if err := os.MkdirAll(m.cfg.StateDir, 0o700); err != nil {
		result.Warnings = append(result.Warnings, "state dir not creatable: "+err.Error())
	} else {
		probe := m.cfg.StateDir + "/.write-probe"
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			result.Warnings = append(result.Warnings, "state dir not writable: "+err.Error())
		} else {
			result.StateDirWritable = true
			_ = os.Remove(probe)
		}
	}

	proc, err := m.launcher.Launch(ctx, m.cfg.TunnelBinary, []string{"--version"})
	if err != nil {
		result.Warnings = append(result.Warnings, "agent not found: "+err.Error())
		return result, nil
	}
	if err := proc.Start(); err != nil {
		result.Warnings = append(result.Warnings, "agent not found: "+err.Error())
		return result, nil
	}

	result.AgentFound = true
	result.AgentPath = m.cfg.TunnelBinary

	scanner := bufio.NewScanner(proc.Stdout())
	for scanner.Scan() {
		if match := tunnelVersionPattern.FindStringSubmatch(scanner.Text()); match != nil {
			result.AgentVersion = match[1]
			break
		}
	}
	_ = proc.Wait()
	return result, nil
}
