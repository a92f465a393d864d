package audit

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"exposemgr/internal/domain"
)

func TestAppendAndQueryRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Append(domain.AuditEvent{Timestamp: base, Event: domain.EventExposureStarted, ID: "port_a"})
	s.Append(domain.AuditEvent{Timestamp: base.Add(time.Minute), Event: domain.EventExposureStopped, ID: "port_a"})
	s.Append(domain.AuditEvent{Timestamp: base.Add(2 * time.Minute), Event: domain.EventExposureStarted, ID: "port_b"})

	all, err := s.Query(domain.AuditQueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	filtered, err := s.Query(domain.AuditQueryFilter{ID: "port_a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 events for port_a, got %d", len(filtered))
	}
	for _, e := range filtered {
		if e.ID != "port_a" {
			t.Fatalf("unexpected id %q in filtered results", e.ID)
		}
	}
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)
	s.Append(domain.AuditEvent{Event: domain.EventGCRun})

	f, err := os.OpenFile(s.auditPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := s.Query(domain.AuditQueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected malformed line to be skipped, got %d events", len(events))
	}
}

func TestQueryLimitClamping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)
	for i := 0; i < 10; i++ {
		s.Append(domain.AuditEvent{Event: domain.EventGCRun})
	}

	events, err := s.Query(domain.AuditQueryFilter{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestQueryIsSubsetOfUnfiltered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)
	s.Append(domain.AuditEvent{Event: domain.EventExposureStarted, ID: "a"})
	s.Append(domain.AuditEvent{Event: domain.EventExposureStopped, ID: "b"})

	all, _ := s.Query(domain.AuditQueryFilter{})
	filtered, _ := s.Query(domain.AuditQueryFilter{Event: domain.EventExposureStarted})

	for _, f := range filtered {
		found := false
		for _, a := range all {
			if reflect.DeepEqual(a, f) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("filtered event %+v not present in unfiltered query", f)
		}
	}
}

func TestExportWritesFileAndRecordsEvent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)
	s.Append(domain.AuditEvent{Event: domain.EventExposureStarted, ID: "a"})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	result, err := s.Export(domain.AuditExportRequest{}, now)
	if err != nil {
		t.Fatal(err)
	}
	if result.Count != 1 {
		t.Fatalf("expected count 1, got %d", result.Count)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("expected export file to exist: %v", err)
	}
	if !filepathHasPrefix(result.OutputPath, filepath.Join(dir, "exports")) {
		t.Fatalf("expected default export path under exports/, got %s", result.OutputPath)
	}

	all, _ := s.Query(domain.AuditQueryFilter{})
	foundExported := false
	for _, e := range all {
		if e.Event == domain.EventAuditExported {
			foundExported = true
		}
	}
	if !foundExported {
		t.Fatal("expected audit_exported event to be recorded")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, nil)

	sessions := []domain.PersistedSession{
		{ID: "port_a", Type: domain.SessionTypePort, Status: domain.StatusRunning, ProcessPID: 123},
	}
	if err := s.WriteSnapshot(sessions); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "port_a" {
		t.Fatalf("unexpected snapshot contents: %+v", got)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), nil)
	got, err := s.ReadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil snapshot, got %+v", got)
	}
}

func filepathHasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, "../")
}
