package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/mizuki/formflow/internal/domain"
)

func TestNotifierSubscribePublish(t *testing.T) {
	n := NewNotifier()

	ch, cancel := n.Subscribe("j1")
	defer cancel()

	n.Publish(&domain.Job{ID: "j1", Message: "one"})
	n.Publish(&domain.Job{ID: "other", Message: "noise"})

	select {
	case snap := <-ch:
		if snap.Message != "one" {
			t.Errorf("expected %q, got %q", "one", snap.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	select {
	case snap := <-ch:
		t.Errorf("received snapshot for another job: %+v", snap)
	default:
	}
}

func TestNotifierCancelIdempotent(t *testing.T) {
	n := NewNotifier()

	_, cancel := n.Subscribe("j1")
	if got := n.SubscriberCount("j1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()
	cancel() // double close must be a no-op

	if got := n.SubscriberCount("j1"); got != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", got)
	}

	// Publishing after cancel must not panic or deliver.
	n.Publish(&domain.Job{ID: "j1"})
}

func TestNotifierDropsOldestWhenFull(t *testing.T) {
	n := NewNotifier()

	ch, cancel := n.Subscribe("j1")
	defer cancel()

	// Overflow the buffer without a consumer; publisher must never block.
	total := subscriberBuffer + 5
	for i := 0; i < total; i++ {
		n.Publish(&domain.Job{ID: "j1", Message: fmt.Sprintf("m%d", i)})
	}

	// Drain what is buffered; the newest snapshot must be among them.
	var last string
	for {
		select {
		case snap := <-ch:
			last = snap.Message
			continue
		default:
		}
		break
	}

	if last != fmt.Sprintf("m%d", total-1) {
		t.Errorf("newest snapshot lost; last delivered was %q", last)
	}
}
