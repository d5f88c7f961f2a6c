package store

import (
	"context"
	"errors"
	"time"

	"github.com/mizuki/formflow/internal/domain"
)

// ErrNotFound is returned when no job exists for the given id.
var ErrNotFound = errors.New("job not found")

// ErrTerminal is returned when a patch targets a job already in a terminal
// state. Terminal rows are frozen so a stream never sees a second outcome.
var ErrTerminal = errors.New("job already in terminal state")

// JobStore is the single durable record collaborator: row-level create,
// read, partial update, and per-row change notification.
//
// Apply merges only the fields present in the patch and returns the resulting
// snapshot; every successful write is published to subscribers of that job.
// Subscribe returns a channel of job snapshots and an idempotent cancel
// function that releases the subscription.
// ListStale returns ids of non-terminal jobs untouched since the cutoff.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Apply(ctx context.Context, id string, patch *domain.JobPatch) (*domain.Job, error)
	Subscribe(jobID string) (<-chan *domain.Job, func())
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

// merge applies patch onto job in place. Progress is clamped, logs are
// appended in order. Callers hold whatever lock protects job.
func merge(job *domain.Job, patch *domain.JobPatch) {
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		job.Progress = domain.ClampProgress(*patch.Progress)
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.Result != nil {
		job.Result = patch.Result
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	if len(patch.AppendLogs) > 0 {
		job.Logs = append(job.Logs, patch.AppendLogs...)
	}
}
