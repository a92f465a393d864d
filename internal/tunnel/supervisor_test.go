package tunnel

import (
	"context"
	"testing"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/process/fake"
	"exposemgr/internal/timing/mock"
)

type logSink struct{ lines []string }

func (l *logSink) Log(_ domain.LogComponent, line string) { l.lines = append(l.lines, line) }

func TestExtractReadyURL(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"+-------------------------------------------------------+", ""},
		{"|  https://my-cool-tunnel.trycloudflare.com              |", "https://my-cool-tunnel.trycloudflare.com"},
		{"connecting to api.trycloudflare.com", ""},
		{"no url here", ""},
	}
	for _, c := range cases {
		got := extractReadyURL(c.line)
		if got != c.want {
			t.Errorf("extractReadyURL(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestSupervisorStartSuccess(t *testing.T) {
	launcher := fake.New()
	launcher.Push(fake.Script{
		StdoutLines: []string{"starting...", "https://abc123.trycloudflare.com ready"},
		Blocks:      true,
	})
	clk := mock.New(time.Unix(0, 0))
	sup := New(launcher, clk, nil, "cloudflared")

	logs := &logSink{}
	h, err := sup.Start(context.Background(), Args{LocalPort: 8080, EdgeIPVersion: "auto", Protocol: "auto"}, logs)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.PublicURL != "https://abc123.trycloudflare.com" {
		t.Fatalf("unexpected public url: %q", h.PublicURL)
	}
	sup.Terminate(h)
}

func TestSupervisorRetriesOnStartFailure(t *testing.T) {
	launcher := fake.New()
	launcher.Push(fake.Script{StartErr: errBoom})
	launcher.Push(fake.Script{StdoutLines: []string{"https://ok.trycloudflare.com"}, Blocks: true})
	clk := mock.New(time.Unix(0, 0))
	sup := New(launcher, clk, nil, "cloudflared")

	h, err := sup.Start(context.Background(), Args{LocalPort: 1, EdgeIPVersion: "auto", Protocol: "auto"}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(launcher.Calls()) != 2 {
		t.Fatalf("expected 2 launch calls, got %d", len(launcher.Calls()))
	}
	sup.Terminate(h)
}

func TestSupervisorExhaustsRetries(t *testing.T) {
	launcher := fake.New()
	launcher.Push(fake.Script{StartErr: errBoom})
	launcher.Push(fake.Script{StartErr: errBoom})
	launcher.Push(fake.Script{StartErr: errBoom})
	clk := mock.New(time.Unix(0, 0))
	sup := New(launcher, clk, nil, "cloudflared")

	_, err := sup.Start(context.Background(), Args{LocalPort: 1, EdgeIPVersion: "auto", Protocol: "auto"}, nil)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
}

func TestSupervisorPrematureExit(t *testing.T) {
	launcher := fake.New()
	launcher.Push(fake.Script{StdoutLines: []string{"no url yet"}, Blocks: false})
	clk := mock.New(time.Unix(0, 0))
	sup := New(launcher, clk, nil, "cloudflared")

	_, err := sup.Start(context.Background(), Args{LocalPort: 1, EdgeIPVersion: "auto", Protocol: "auto"}, nil)
	if err == nil {
		t.Fatal("expected failure when the agent exits before emitting a URL")
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }
