// Package tunnel implements the quick-tunnel agent supervisor:
// spawning the external binary, scanning its stdout/stderr for a
// readiness URL, bounded retry, and forceful termination. Process
// spawning is abstracted behind process.Launcher so tests inject a
// fake launcher instead of spawning a real cloudflared-shaped binary.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/process"
	"exposemgr/internal/timing"
)

// ReadinessTimeout bounds how long Start waits for a public URL before
// giving up.
const ReadinessTimeout = 30 * time.Second

// TerminateGrace is the SIGTERM-to-SIGKILL grace period.
const TerminateGrace = 2500 * time.Millisecond

// DefaultRetryAttempts is the bounded retry count on a failed spawn.
const DefaultRetryAttempts = 2

var quickTunnelURLPattern = regexp.MustCompile(`https://([A-Za-z0-9-]+)\.trycloudflare\.com`)

var subdomainBlacklist = map[string]bool{"api": true}

// extractReadyURL scans line for the first valid quick-tunnel URL, or
// returns "" if none matches.
func extractReadyURL(line string) string {
	m := quickTunnelURLPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	if subdomainBlacklist[m[1]] {
		return ""
	}
	return m[0]
}

// Args bundles the parameters the supervisor turns into agent CLI
// flags.
type Args struct {
	LocalPort     int
	EdgeIPVersion string
	Protocol      string
	BinaryPath    string // resolved in PATH if empty-path lookups handled by caller
}

func (a Args) toExecArgs() []string {
	return []string{
		"tunnel",
		"--url", fmt.Sprintf("http://127.0.0.1:%d", a.LocalPort),
		"--edge-ip-version", a.EdgeIPVersion,
		"--protocol", a.Protocol,
		"--no-autoupdate",
	}
}

// LogSink receives one line per tunnel stdout/stderr line, appended to
// the owning session's log ring.
type LogSink interface {
	Log(component domain.LogComponent, line string)
}

// Handle is a running tunnel: its process, and the public URL once ready.
type Handle struct {
	proc      process.Process
	PublicURL string

	mu       sync.Mutex
	exitErr  error
	exitCh   chan struct{}
}

// PID returns the underlying OS process id.
func (h *Handle) PID() int { return h.proc.PID() }

// Wait blocks until the child process has exited and returns its exit
// error, if any. Safe to call more than once.
func (h *Handle) Wait() error {
	<-h.exitCh
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Exited returns a channel that closes when the child has exited.
func (h *Handle) Exited() <-chan struct{} { return h.exitCh }

// Supervisor owns spawning and terminating tunnel agent processes.
type Supervisor struct {
	launcher process.Launcher
	clock    timing.Clock
	log      *slog.Logger
	binary   string
	retries  int
}

// New builds a Supervisor. binary is the path/name of the tunnel
// agent executable, resolvable in PATH or as an absolute path.
func New(launcher process.Launcher, clock timing.Clock, log *slog.Logger, binary string) *Supervisor {
	return &Supervisor{launcher: launcher, clock: clock, log: log, binary: binary, retries: DefaultRetryAttempts}
}

// Start spawns the tunnel agent targeting args.LocalPort, retrying up
// to s.retries times on failure, and blocks until a readiness URL is
// parsed from stdout/stderr or ReadinessTimeout elapses.
func (s *Supervisor) Start(ctx context.Context, args Args, logs LogSink) (*Handle, error) {
	var lastErr error
	var prev *Handle

	for attempt := 0; attempt <= s.retries; attempt++ {
		if prev != nil {
			s.Terminate(prev)
			prev = nil
		}

		handle, err := s.spawnOnce(ctx, args, logs)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if handle != nil {
			prev = handle
		}
		if s.log != nil {
			s.log.Warn("tunnel start attempt failed", "attempt", attempt, "error", err)
		}
	}
	if prev != nil {
		s.Terminate(prev)
	}
	return nil, domain.WrapError(domain.KindTunnelStartupFailure, "expose", lastErr)
}

func (s *Supervisor) spawnOnce(ctx context.Context, args Args, logs LogSink) (*Handle, error) {
	binary := s.binary
	if args.BinaryPath != "" {
		binary = args.BinaryPath
	}
	proc, err := s.launcher.Launch(ctx, binary, args.toExecArgs())
	if err != nil {
		return nil, fmt.Errorf("agent_not_found: %w", err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("agent_not_found: %w", err)
	}

	handle := &Handle{proc: proc, exitCh: make(chan struct{})}
	readyCh := make(chan string, 1)
	var readyOnce sync.Once

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(proc.Stdout(), func(line string) {
			if logs != nil {
				logs.Log(domain.LogTunnel, line)
			}
			if url := extractReadyURL(line); url != "" {
				readyOnce.Do(func() { readyCh <- url })
			}
		})
	}()
	go func() {
		defer wg.Done()
		streamLines(proc.Stderr(), func(line string) {
			if logs != nil {
				logs.Log(domain.LogTunnel, line)
			}
			if url := extractReadyURL(line); url != "" {
				readyOnce.Do(func() { readyCh <- url })
			}
		})
	}()

	go func() {
		err := proc.Wait()
		handle.mu.Lock()
		handle.exitErr = err
		handle.mu.Unlock()
		close(handle.exitCh)
	}()

	select {
	case url := <-readyCh:
		handle.PublicURL = url
		return handle, nil
	case <-s.clock.After(ReadinessTimeout):
		s.Terminate(handle)
		return nil, fmt.Errorf("timed_out_waiting_for_url")
	case <-handle.exitCh:
		return nil, fmt.Errorf("tunnel agent exited before emitting a URL")
	case <-ctx.Done():
		s.Terminate(handle)
		return nil, ctx.Err()
	}
}

// Terminate sends SIGTERM, waits up to TerminateGrace, then SIGKILL,
// and blocks until the process has exited. A no-op on an
// already-exited handle.
func (s *Supervisor) Terminate(h *Handle) {
	if h == nil {
		return
	}
	select {
	case <-h.exitCh:
		return
	default:
	}

	_ = h.proc.Signal(process.SignalTerm)
	select {
	case <-h.exitCh:
		return
	case <-s.clock.After(TerminateGrace):
	}

	select {
	case <-h.exitCh:
		return
	default:
	}
	_ = h.proc.Signal(process.SignalKill)
	<-h.exitCh
}
