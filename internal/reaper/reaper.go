package reaper

import (
	"context"
	"errors"
	"time"

	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/logger"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/store"
	"github.com/robfig/cron/v3"
)

// timeoutMessage is the error recorded on jobs the reaper closes.
const timeoutMessage = "job timed out"

// Reaper periodically marks jobs stuck in a non-terminal state past the
// configured TTL as failed. This bounds job lifetime: a worker that never
// calls back cannot leave a row "running" forever, and any open stream on a
// reaped job observes the terminal transition through the normal
// change-notification path.
type Reaper struct {
	store   store.JobStore
	ttl     time.Duration
	cron    *cron.Cron
	metrics *observability.Metrics
}

// New creates a reaper for the given store. metrics may be nil.
func New(jobStore store.JobStore, cfg *config.ReaperConfig, metrics *observability.Metrics) (*Reaper, error) {
	r := &Reaper{
		store:   jobStore,
		ttl:     cfg.JobTTL,
		cron:    cron.New(),
		metrics: metrics,
	}

	if _, err := r.cron.AddFunc(cfg.Schedule, func() {
		r.Sweep(context.Background())
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the sweep schedule in its own goroutine.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep marks every job stale past the TTL as failed. Jobs that reach a
// terminal state between listing and patching are skipped (ErrTerminal).
// Returns the number of jobs reaped.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-r.ttl)
	ids, err := r.store.ListStale(ctx, cutoff)
	if err != nil {
		logger.CtxError(ctx, "Reaper failed to list stale jobs: %v", err)
		return 0
	}

	reaped := 0
	for _, id := range ids {
		status := domain.JobStatusError
		msg := timeoutMessage
		patch := &domain.JobPatch{
			Status: &status,
			Error:  &msg,
		}
		if _, err := r.store.Apply(ctx, id, patch); err != nil {
			if !errors.Is(err, store.ErrTerminal) {
				logger.CtxError(ctx, "Reaper failed to close job %s: %v", id, err)
			}
			continue
		}
		reaped++
		if r.metrics != nil {
			r.metrics.JobsReapedTotal.Inc()
		}
		logger.With(logger.Fields{logger.FieldJobID: id}).Warn(ctx, "Reaped stale job")
	}

	if reaped > 0 {
		logger.With(logger.Fields{logger.FieldCount: reaped}).Info(ctx, "Reaper sweep finished")
	}
	return reaped
}
