package manager

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"exposemgr/internal/domain"
	"exposemgr/internal/process/fake"
)

func TestRunGCRemovesOrphanedWorkspace(t *testing.T) {
	launcher := fake.New()
	m, _ := newTestManager(t, launcher, http.DefaultTransport)

	orphan := filepath.Join(m.cfg.workspacesDir(), "orphan-session")
	if err := os.MkdirAll(orphan, 0o700); err != nil {
		t.Fatalf("seed orphan workspace: %v", err)
	}

	res, err := m.RunGC()
	if err != nil {
		t.Fatalf("RunGC: %v", err)
	}
	if len(res.RemovedWorkspaces) != 1 {
		t.Fatalf("expected one removed workspace, got %+v", res.RemovedWorkspaces)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphan workspace removed, stat err = %v", err)
	}
}

func TestRunGCKeepsLiveSessionWorkspace(t *testing.T) {
	src := t.TempDir()
	f1 := writeTempFile(t, src, "keep.txt", "keep me")

	launcher := fake.New()
	launcher.Push(readyScript("https://gc-keep-test.trycloudflare.com"))
	m, _ := newTestManager(t, launcher, http.DefaultTransport)

	res, err := m.ExposeFiles(context.Background(), domain.ExposeFilesRequest{Paths: []string{f1}})
	if err != nil {
		t.Fatalf("ExposeFiles: %v", err)
	}

	orphan := filepath.Join(m.cfg.workspacesDir(), "orphan-alongside-live")
	if err := os.MkdirAll(orphan, 0o700); err != nil {
		t.Fatalf("seed orphan workspace: %v", err)
	}

	gcRes, err := m.RunGC()
	if err != nil {
		t.Fatalf("RunGC: %v", err)
	}
	if len(gcRes.RemovedWorkspaces) != 1 {
		t.Fatalf("expected only the orphan removed, got %+v", gcRes.RemovedWorkspaces)
	}
	if _, err := os.Stat(res.WorkspaceDir); err != nil {
		t.Fatalf("live session workspace should survive GC: %v", err)
	}
}
