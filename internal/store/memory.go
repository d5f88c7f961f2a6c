package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mizuki/formflow/internal/domain"
)

// MemoryStore is the in-process JobStore used by the "memory" database
// driver and as the test double. Same semantics as GormStore: last-write-wins
// per field, terminal rows frozen, every write published to subscribers.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.Job
	notifier *Notifier
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*domain.Job),
		notifier: NewNotifier(),
	}
}

// Create inserts a new job record.
func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get retrieves a job snapshot by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// Apply merges a partial update into the stored job and publishes the
// resulting snapshot. Patches against terminal rows are rejected.
func (s *MemoryStore) Apply(ctx context.Context, id string, patch *domain.JobPatch) (*domain.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return nil, ErrTerminal
	}

	merge(job, patch)
	job.UpdatedAt = time.Now()
	snapshot := job.Clone()
	s.mu.Unlock()

	s.notifier.Publish(snapshot)
	return snapshot, nil
}

// Subscribe registers for change notifications on one job.
func (s *MemoryStore) Subscribe(jobID string) (<-chan *domain.Job, func()) {
	return s.notifier.Subscribe(jobID)
}

// ListStale returns ids of non-terminal jobs untouched since the cutoff.
func (s *MemoryStore) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Notifier exposes the hub; used by tests to assert subscription release.
func (s *MemoryStore) Notifier() *Notifier {
	return s.notifier
}
