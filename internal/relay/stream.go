package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/logger"
	"github.com/mizuki/formflow/internal/store"
)

// EventType is the SSE event name sent to the browser.
type EventType string

const (
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// ConnectedMessage is the fixed acknowledgment line emitted as the first log
// event on every stream, so the client can tell "open, nothing yet" from a
// silent hang.
const ConnectedMessage = "stream connected"

// Event is one typed line relayed to the subscriber.
type Event struct {
	Type EventType
	Data string
}

// EmitFunc delivers one event to the transport. A non-nil error means the
// transport is gone and the stream must stop without further events.
type EmitFunc func(Event) error

// Streamer relays one job's buffered history and live updates to a single
// subscriber as an ordered event sequence ending in at most one terminal
// event.
//
// A per-connection cursor tracks how many log lines have been emitted; each
// change notification carries the full accumulated log list and everything
// past the cursor is emitted, so back-to-back updates lose nothing. This
// assumes the single-writer, full-snapshot delivery the store provides;
// duplicate suppression across reconnects is out of scope.
type Streamer struct {
	store store.JobStore
}

// NewStreamer creates a Streamer reading from the given store.
func NewStreamer(jobStore store.JobStore) *Streamer {
	return &Streamer{store: jobStore}
}

// Run drives one stream connection until a terminal event is emitted, the
// context is canceled (client disconnect), or emit reports a dead transport.
// The subscription, when established, is released exactly once on every exit
// path. Cancellation never produces further events.
// Parameters:
//   - ctx: request context; cancellation is the disconnect signal.
//   - jobID: job to relay.
//   - emit: transport sink for events.
//
// Returns:
//   - error: transport failure from emit; nil for all orderly closures.
func (s *Streamer) Run(ctx context.Context, jobID string, emit EmitFunc) error {
	ctx = logger.SetJobID(ctx, jobID)

	if err := emit(Event{Type: EventLog, Data: ConnectedMessage}); err != nil {
		return err
	}

	// Subscribe before the initial read so a write landing between the read
	// and the subscription is still observed as a notification.
	updates, cancel := s.store.Subscribe(jobID)
	defer cancel()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.CtxWarn(ctx, "Stream requested for unknown job")
			return emit(Event{Type: EventError, Data: "job not found"})
		}
		logger.CtxError(ctx, "Stream initial read failed: %v", err)
		return emit(Event{Type: EventError, Data: "failed to read job state"})
	}

	// Replay buffered history in stored order.
	cursor := 0
	if err := s.emitLogs(job.Logs, &cursor, emit); err != nil {
		return err
	}

	if job.Status.IsTerminal() {
		cancel()
		return s.emitTerminal(ctx, job, emit)
	}

	// Tail live updates until a terminal state or disconnect.
	for {
		select {
		case <-ctx.Done():
			logger.CtxDebug(ctx, "Stream client disconnected")
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				return nil
			}
			if err := s.emitLogs(snapshot.Logs, &cursor, emit); err != nil {
				return err
			}
			if snapshot.Status.IsTerminal() {
				cancel()
				return s.emitTerminal(ctx, snapshot, emit)
			}
		}
	}
}

// emitLogs sends every stored log line past the cursor, skipping blank
// entries, and advances the cursor to the end of the list.
func (s *Streamer) emitLogs(logs domain.StringArray, cursor *int, emit EmitFunc) error {
	for ; *cursor < len(logs); *cursor++ {
		line := logs[*cursor]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := emit(Event{Type: EventLog, Data: line}); err != nil {
			return err
		}
	}
	return nil
}

// emitTerminal sends the single terminal event for a finished job.
func (s *Streamer) emitTerminal(ctx context.Context, job *domain.Job, emit EmitFunc) error {
	if job.Status == domain.JobStatusDone {
		data, err := json.Marshal(job.Result)
		if err != nil {
			logger.CtxError(ctx, "Failed to serialize job result: %v", err)
			return emit(Event{Type: EventError, Data: "failed to serialize result"})
		}
		logger.CtxInfo(ctx, "Stream closing with result")
		return emit(Event{Type: EventResult, Data: string(data)})
	}

	msg := job.Error
	if msg == "" {
		msg = "job failed"
	}
	logger.CtxInfo(ctx, "Stream closing with error: %s", msg)
	return emit(Event{Type: EventError, Data: msg})
}
