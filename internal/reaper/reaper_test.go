package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/store"
)

func TestSweepMarksStaleJobsFailed(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	err := ms.Create(ctx, &domain.Job{
		ID:     "stuck",
		Status: domain.JobStatusRunning,
		Logs:   domain.StringArray{},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	done := &domain.Job{
		ID:     "finished",
		Status: domain.JobStatusDone,
		Result: domain.JSONMap{"summary": "ok"},
	}
	if err := ms.Create(ctx, done); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// A zero TTL makes every non-terminal job stale.
	r, err := New(ms, &config.ReaperConfig{
		Schedule: "@every 1h",
		JobTTL:   0,
	}, nil)
	if err != nil {
		t.Fatalf("new reaper failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	updates, cancel := ms.Subscribe("stuck")
	defer cancel()

	if reaped := r.Sweep(ctx); reaped != 1 {
		t.Fatalf("expected 1 reaped job, got %d", reaped)
	}

	job, err := ms.Get(ctx, "stuck")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.Status != domain.JobStatusError {
		t.Errorf("expected error status, got %s", job.Status)
	}
	if job.Error == "" {
		t.Error("expected a timeout error message")
	}

	// Open streams observe the reap through the normal notification path.
	select {
	case snap := <-updates:
		if !snap.Status.IsTerminal() {
			t.Errorf("notified snapshot not terminal: %s", snap.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("reap did not publish a change notification")
	}

	// Terminal rows are untouched.
	job, _ = ms.Get(ctx, "finished")
	if job.Status != domain.JobStatusDone {
		t.Errorf("terminal job mutated by reaper: %s", job.Status)
	}

	// A second sweep finds nothing left.
	if reaped := r.Sweep(ctx); reaped != 0 {
		t.Errorf("expected idempotent sweep, reaped %d", reaped)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := New(ms, &config.ReaperConfig{Schedule: "not a schedule"}, nil)
	if err == nil {
		t.Error("expected schedule parse error")
	}
}
