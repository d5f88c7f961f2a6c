package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/store"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func seedJob(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	err := ms.Create(context.Background(), &domain.Job{
		ID:      id,
		Status:  domain.JobStatusQueued,
		Message: "Queued",
		Logs:    domain.StringArray{},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestCallbackRejectsBadSecret(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer("s3cret"))

	tests := []struct {
		name   string
		secret string
	}{
		{"wrong secret", "nope"},
		{"missing secret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cb.Handle(context.Background(), &CallbackRequest{
				JobID:   "j1",
				Message: strPtr("sneaky"),
				Secret:  tt.secret,
			})
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}

			job, _ := ms.Get(context.Background(), "j1")
			if job.Message != "Queued" {
				t.Errorf("row mutated by unauthorized callback: %q", job.Message)
			}
		})
	}
}

func TestCallbackNoConfiguredSecretAllowsAll(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	if _, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:   "j1",
		Message: strPtr("hello"),
	}); err != nil {
		t.Fatalf("expected open callback to succeed, got %v", err)
	}
}

func TestCallbackMissingJobID(t *testing.T) {
	ms := store.NewMemoryStore()
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	_, err := cb.Handle(context.Background(), &CallbackRequest{Message: strPtr("hi")})
	if !errors.Is(err, ErrMissingJobID) {
		t.Fatalf("expected ErrMissingJobID, got %v", err)
	}
}

func TestCallbackPartialUpdate(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	running := string(domain.JobStatusRunning)
	if _, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:    "j1",
		Status:   &running,
		Progress: intPtr(40),
		Message:  strPtr("processing"),
	}); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	// A message-only follow-up must not disturb status or progress.
	job, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:   "j1",
		Message: strPtr("still at it"),
	})
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	if job.Status != domain.JobStatusRunning {
		t.Errorf("status disturbed: %s", job.Status)
	}
	if job.Progress != 40 {
		t.Errorf("progress disturbed: %d", job.Progress)
	}
	if job.Message != "still at it" {
		t.Errorf("message not applied: %q", job.Message)
	}
	if len(job.Logs) != 2 {
		t.Fatalf("expected 2 log lines, got %v", job.Logs)
	}
	if job.Logs[0] != "processing (40%)" {
		t.Errorf("expected progress context in log line, got %q", job.Logs[0])
	}
	if job.Logs[1] != "still at it" {
		t.Errorf("expected bare message log line, got %q", job.Logs[1])
	}
}

func TestCallbackClampsProgress(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	job, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:    "j1",
		Progress: intPtr(9000),
	})
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if job.Progress != 100 {
		t.Errorf("expected clamped 100, got %d", job.Progress)
	}
}

func TestCallbackInvalidStatus(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	bogus := "paused"
	_, err := cb.Handle(context.Background(), &CallbackRequest{JobID: "j1", Status: &bogus})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCallbackUnknownJob(t *testing.T) {
	ms := store.NewMemoryStore()
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	_, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:   "ghost",
		Message: strPtr("hi"),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallbackTerminalJobRejected(t *testing.T) {
	ms := store.NewMemoryStore()
	seedJob(t, ms, "j1")
	cb := NewCallback(ms, NewSecretAuthorizer(""))

	done := string(domain.JobStatusDone)
	if _, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:  "j1",
		Status: &done,
		Result: domain.JSONMap{"summary": "ok"},
	}); err != nil {
		t.Fatalf("terminal callback failed: %v", err)
	}

	_, err := cb.Handle(context.Background(), &CallbackRequest{
		JobID:   "j1",
		Message: strPtr("too late"),
	})
	if !errors.Is(err, store.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}
