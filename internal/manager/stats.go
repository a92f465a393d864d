package manager

import (
	"sync"
	"sync/atomic"
	"time"
)

// statsRecorder implements access.StatsSink, proxyorigin.StatsSink, and
// fileorigin.StatsSink/DownloadSink over a session's Stats, using atomics
// for the monotonic counters and a short critical section for
// lastAccessAt. onQuotaReached fires at most once, the instant downloads
// reaches maxDownloads.
type statsRecorder struct {
	requests  atomic.Int64
	downloads atomic.Int64
	bytesSent atomic.Int64

	mu         sync.Mutex
	lastAccess time.Time

	maxDownloads   int
	quotaTriggered atomic.Bool
	onQuotaReached func()
}

func (s *statsRecorder) RecordRequest() { s.requests.Add(1) }

func (s *statsRecorder) RecordBytesSent(n int64) { s.bytesSent.Add(n) }

func (s *statsRecorder) LastAccessAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastAccess) {
		s.lastAccess = t
	}
}

// RecordDownload increments the download counter (bytes are already
// counted through RecordBytesSent by the caller) and, once downloads
// reaches maxDownloads, fires onQuotaReached exactly once.
func (s *statsRecorder) RecordDownload(_ int64) {
	n := s.downloads.Add(1)
	if s.maxDownloads <= 0 || n < int64(s.maxDownloads) {
		return
	}
	if s.quotaTriggered.CompareAndSwap(false, true) && s.onQuotaReached != nil {
		go s.onQuotaReached()
	}
}

func (s *statsRecorder) snapshot() (requests, downloads, bytesSent int64, lastAccess time.Time) {
	s.mu.Lock()
	lastAccess = s.lastAccess
	s.mu.Unlock()
	return s.requests.Load(), s.downloads.Load(), s.bytesSent.Load(), lastAccess
}
