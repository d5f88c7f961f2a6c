package relay

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/logger"
	"github.com/mizuki/formflow/internal/store"
)

// Authorizer decides whether a callback request may mutate job state.
// A single seam so the shared-secret check can be swapped for a stronger
// scheme without touching the rest of the callback path.
type Authorizer interface {
	Authorize(secret string) bool
}

// SecretAuthorizer compares the request secret against a configured shared
// secret in constant time. An empty configured secret disables the check;
// that is an explicit operator choice, warned about at startup.
type SecretAuthorizer struct {
	secret string
}

// NewSecretAuthorizer creates a shared-secret authorizer.
func NewSecretAuthorizer(secret string) *SecretAuthorizer {
	return &SecretAuthorizer{secret: secret}
}

// Authorize reports whether the presented secret is acceptable.
func (a *SecretAuthorizer) Authorize(secret string) bool {
	if a.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.secret), []byte(secret)) == 1
}

// CallbackRequest is the worker's progress/result report. Every field except
// JobID and Secret is optional; absent fields are left untouched on the row.
type CallbackRequest struct {
	JobID    string         `json:"jobId"`
	Status   *string        `json:"status,omitempty"`
	Progress *int           `json:"progress,omitempty"`
	Message  *string        `json:"message,omitempty"`
	Result   domain.JSONMap `json:"result,omitempty"`
	Error    *string        `json:"error,omitempty"`
	Secret   string         `json:"secret,omitempty"`
}

// Callback merges worker progress reports into job rows.
type Callback struct {
	store store.JobStore
	auth  Authorizer
}

// NewCallback creates a callback applier with the given authorizer.
func NewCallback(jobStore store.JobStore, auth Authorizer) *Callback {
	return &Callback{
		store: jobStore,
		auth:  auth,
	}
}

// Handle validates and applies one callback request. Only fields present in
// the request are merged; progress is clamped; a present message is also
// appended to the job's log sequence (with progress context when available)
// so the stream has a line to relay.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: decoded callback body.
//
// Returns:
//   - *domain.Job: resulting row snapshot after the merge.
//   - error: ErrUnauthorized, ErrMissingJobID, an invalid-status error, or a
//     store error (store.ErrNotFound, store.ErrTerminal, write failure).
func (c *Callback) Handle(ctx context.Context, req *CallbackRequest) (*domain.Job, error) {
	if !c.auth.Authorize(req.Secret) {
		return nil, ErrUnauthorized
	}
	if req.JobID == "" {
		return nil, ErrMissingJobID
	}

	ctx = logger.SetJobID(ctx, req.JobID)

	patch := &domain.JobPatch{
		Result: req.Result,
		Error:  req.Error,
	}

	if req.Status != nil {
		status := domain.JobStatus(*req.Status)
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
		patch.Status = &status
	}
	if req.Progress != nil {
		clamped := domain.ClampProgress(*req.Progress)
		patch.Progress = &clamped
	}
	if req.Message != nil {
		patch.Message = req.Message
		patch.AppendLogs = []string{logLine(*req.Message, req.Progress)}
	}

	job, err := c.store.Apply(ctx, req.JobID, patch)
	if err != nil {
		return nil, err
	}

	logger.CtxDebug(ctx, "Callback applied: status=%s, progress=%d", job.Status, job.Progress)
	return job, nil
}

// logLine renders a worker message as one display log line, carrying progress
// context when the same callback reported it.
func logLine(message string, progress *int) string {
	if progress != nil {
		return fmt.Sprintf("%s (%d%%)", message, domain.ClampProgress(*progress))
	}
	return message
}
