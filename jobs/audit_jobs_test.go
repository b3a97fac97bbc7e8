package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubArchiveStore struct {
	cutoff time.Time
	moved  int64
}

func (s *stubArchiveStore) ArchiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.moved, nil
}

type stubIntegrityStore struct {
	count int64
}

func (s *stubIntegrityStore) CountSince(_ context.Context, _ time.Time) (int64, error) {
	return s.count, nil
}

type stubPruner struct {
	removed int64
	calls   int
}

func (s *stubPruner) PruneSessions(_ context.Context, _ time.Time) (int64, error) {
	s.calls++
	return s.removed, nil
}

func TestAuditArchiveAppliesRetention(t *testing.T) {
	store := &stubArchiveStore{moved: 7}
	job := NewAuditArchiveJob(store, nil, nil)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewAuditArchiveTask(30)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := now.AddDate(0, 0, -30)
	if !store.cutoff.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", store.cutoff, want)
	}
}

func TestAuditArchiveDefaultsRetention(t *testing.T) {
	store := &stubArchiveStore{}
	job := NewAuditArchiveJob(store, nil, nil)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewAuditArchiveTask(0)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !store.cutoff.Equal(now.AddDate(0, 0, -365)) {
		t.Fatalf("cutoff = %s", store.cutoff)
	}
}

func TestAuditIntegritySilentWindowStillSucceeds(t *testing.T) {
	job := NewAuditIntegrityJob(&stubIntegrityStore{count: 0}, nil, nil)

	task, err := NewAuditIntegrityTask(24)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	// Emptiness is reported as an anomaly but is not a task failure;
	// failing would just retry a scan that changes nothing.
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestSessionsPruneRuns(t *testing.T) {
	pruner := &stubPruner{removed: 3}
	job := NewSessionsPruneJob(pruner, nil, nil)

	task, err := NewSessionsPruneTask(time.Now())
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if pruner.calls != 1 {
		t.Fatalf("calls = %d", pruner.calls)
	}
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewAuditArchiveJob(&stubArchiveStore{}, nil, nil)
	bad := asynq.NewTask(TaskAuditArchive, []byte("{"))
	if err := job.Handle(context.Background(), bad); err != asynq.SkipRetry {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}
