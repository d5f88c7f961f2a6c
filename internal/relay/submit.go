package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/logger"
	"github.com/mizuki/formflow/internal/store"
)

// defaultDispatchTimeout bounds the worker acknowledgment wait when the
// configuration leaves it unset.
const defaultDispatchTimeout = 15 * time.Second

// dispatchRequest is the outbound payload handed to the external worker.
type dispatchRequest struct {
	JobID   string         `json:"jobId"`
	Payload domain.JSONMap `json:"payload"`
}

// Submitter creates job rows and hands them to the external automation worker.
// It waits only for the worker's acknowledgment, never for task completion.
type Submitter struct {
	store      store.JobStore
	client     *resty.Client
	webhookURL string
}

// NewSubmitter creates a Submitter bound to the given store and worker config.
// Parameters:
//   - jobStore: job store used for row creation and failure transitions.
//   - cfg: worker configuration (webhook URL, dispatch timeout).
//
// Returns:
//   - *Submitter: initialized submitter.
func NewSubmitter(jobStore store.JobStore, cfg *config.WorkerConfig) *Submitter {
	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Submitter{
		store:      jobStore,
		client:     client,
		webhookURL: cfg.WebhookURL,
	}
}

// Submit creates a queued job for the payload and dispatches it to the worker.
// On dispatch rejection the job is transitioned to error before returning, and
// the returned *DispatchError still carries the job id so the caller can
// observe the row. A missing webhook URL fails before any row is created.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: validated intake form data, stored on the row for audit.
//
// Returns:
//   - string: new job id (also set on DispatchError failures).
//   - error: ErrWorkerNotConfigured, a store error, or *DispatchError.
func (s *Submitter) Submit(ctx context.Context, payload domain.JSONMap) (string, error) {
	if s.webhookURL == "" {
		return "", ErrWorkerNotConfigured
	}

	job := &domain.Job{
		ID:       uuid.NewString(),
		Status:   domain.JobStatusQueued,
		Progress: 0,
		Message:  "Queued",
		Logs:     domain.StringArray{},
		Payload:  payload,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	logger.CtxInfo(ctx, "Job created, dispatching to worker")

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(dispatchRequest{JobID: job.ID, Payload: payload}).
		Post(s.webhookURL)

	if err != nil {
		return job.ID, s.failDispatch(ctx, job.ID, 0, err.Error())
	}
	if resp.IsError() {
		detail := fmt.Sprintf("worker responded with status %d", resp.StatusCode())
		return job.ID, s.failDispatch(ctx, job.ID, resp.StatusCode(), detail)
	}

	logger.CtxInfo(ctx, "Worker accepted dispatch: status=%d", resp.StatusCode())
	return job.ID, nil
}

// failDispatch transitions the job to error and wraps the failure so any
// observer sees a terminal outcome instead of a forever-queued row.
func (s *Submitter) failDispatch(ctx context.Context, jobID string, statusCode int, detail string) error {
	status := domain.JobStatusError
	errMsg := "dispatch failed: " + detail
	patch := &domain.JobPatch{
		Status: &status,
		Error:  &errMsg,
	}
	if _, err := s.store.Apply(ctx, jobID, patch); err != nil {
		logger.CtxError(ctx, "Failed to mark job as dispatch-failed: %v", err)
	}
	return &DispatchError{JobID: jobID, StatusCode: statusCode, Detail: detail}
}
