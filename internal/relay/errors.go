package relay

import (
	"errors"
	"fmt"
)

// ErrWorkerNotConfigured indicates the outbound webhook URL is missing from
// configuration. Surfaced before any job row is created.
var ErrWorkerNotConfigured = errors.New("worker webhook URL is not configured")

// ErrUnauthorized indicates a callback failed the shared-secret check.
// Deliberately carries no detail about why.
var ErrUnauthorized = errors.New("unauthorized")

// ErrMissingJobID indicates a callback arrived without a job id.
var ErrMissingJobID = errors.New("jobId is required")

// ErrInvalidStatus indicates a callback carried an unknown status value.
var ErrInvalidStatus = errors.New("invalid status")

// DispatchError indicates the external worker rejected or never received the
// dispatch. The job row has already been transitioned to error when this is
// returned, so JobID is still observable by a stream.
type DispatchError struct {
	JobID      string
	StatusCode int
	Detail     string
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("worker dispatch failed for job %s: status %d: %s", e.JobID, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("worker dispatch failed for job %s: %s", e.JobID, e.Detail)
}
