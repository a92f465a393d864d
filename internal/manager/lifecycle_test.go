package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"exposemgr/internal/domain"
	"exposemgr/internal/process/fake"
)

func exposeOnePort(t *testing.T, m *Manager, launcher *fake.Launcher, url string) domain.ExposePortResult {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(upstream.Close)
	launcher.Push(readyScript(url))
	res, err := m.ExposePort(context.Background(), domain.ExposePortRequest{Port: localUpstreamPort(t, upstream)})
	if err != nil {
		t.Fatalf("ExposePort: %v", err)
	}
	return res
}

func TestStopSingleAndSecondCallReportsNotFound(t *testing.T) {
	launcher := fake.New()
	m, _ := newTestManager(t, launcher, http.DefaultTransport)
	res := exposeOnePort(t, m, launcher, "https://stop-once.trycloudflare.com")

	stop := m.Stop([]string{res.ID})
	if len(stop.Stopped) != 1 {
		t.Fatalf("first stop = %+v", stop)
	}

	stop2 := m.Stop([]string{res.ID})
	if len(stop2.Failed) != 1 || stop2.Failed[0].ID != res.ID {
		t.Fatalf("second stop should fail not_found, got %+v", stop2)
	}
}

func TestStopAllExpandsToEverySession(t *testing.T) {
	launcher := fake.New()
	m, _ := newTestManager(t, launcher, http.DefaultTransport)
	a := exposeOnePort(t, m, launcher, "https://stopall-a.trycloudflare.com")
	b := exposeOnePort(t, m, launcher, "https://stopall-b.trycloudflare.com")

	stop := m.Stop([]string{domain.StopAll})
	if len(stop.Stopped) != 2 {
		t.Fatalf("expected both sessions stopped, got %+v", stop)
	}
	ids := map[string]bool{stop.Stopped[0]: true, stop.Stopped[1]: true}
	if !ids[a.ID] || !ids[b.ID] {
		t.Fatalf("stopped set %v missing one of %s/%s", ids, a.ID, b.ID)
	}
}

func TestTerminateRaceOnlyOneWinner(t *testing.T) {
	launcher := fake.New()
	m, _ := newTestManager(t, launcher, http.DefaultTransport)
	res := exposeOnePort(t, m, launcher, "https://race-test.trycloudflare.com")

	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := m.terminate(res.ID, domain.StatusStopped, "")
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one terminate call to win, got %d of %d", count, n)
	}
}
