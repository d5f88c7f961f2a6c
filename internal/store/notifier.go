package store

import (
	"sync"

	"github.com/mizuki/formflow/internal/domain"
)

// subscriberBuffer is the per-subscriber channel depth. When a slow consumer
// falls behind, the oldest buffered snapshot is dropped; each snapshot carries
// the full row state, so the newest one is always sufficient to catch up.
const subscriberBuffer = 16

// Notifier is an in-process change-notification hub keyed by job id.
// It stands in for the managed datastore's row-change push channel:
// at-least-once per-row delivery, no cross-field ordering guarantee.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan *domain.Job
}

// NewNotifier creates an empty notification hub.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[int]chan *domain.Job),
	}
}

// Subscribe registers interest in changes to one job. The returned cancel
// function is idempotent and closes the channel.
func (n *Notifier) Subscribe(jobID string) (<-chan *domain.Job, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *domain.Job, subscriberBuffer)
	id := n.nextID
	n.nextID++

	if n.subs[jobID] == nil {
		n.subs[jobID] = make(map[int]chan *domain.Job)
	}
	n.subs[jobID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if m, ok := n.subs[jobID]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(n.subs, jobID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers a job snapshot to every subscriber of that job without
// ever blocking the writer. On a full buffer the oldest entry is evicted.
func (n *Notifier) Publish(job *domain.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[job.ID] {
		snapshot := job.Clone()
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a job.
// Used by tests to assert subscription release.
func (n *Notifier) SubscriberCount(jobID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[jobID])
}
