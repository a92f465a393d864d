package manager

import (
	"net/http"
	"testing"
	"time"

	"exposemgr/internal/process/fake"
	"exposemgr/internal/timing/mock"
)

// newTestManager builds a Manager rooted at a fresh temp state dir, with
// a mock clock and fake process launcher so tests never sleep or spawn a
// real tunnel binary.
func newTestManager(t *testing.T, launcher *fake.Launcher, transport http.RoundTripper) (*Manager, *mock.Clock) {
	t.Helper()
	clk := mock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := Config{StateDir: t.TempDir(), TunnelBinary: "cloudflared"}
	m, err := New(cfg, clk, launcher, transport, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m, clk
}

// readyScript is a fake.Script that immediately reports a quick-tunnel
// readiness URL and blocks until terminated, mimicking a live agent.
func readyScript(url string) fake.Script {
	return fake.Script{StdoutLines: []string{url}, Blocks: true}
}
