package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultLimit is used when callers ask for a non-positive number of events
const DefaultLimit = 100

// eventLogger implements the EventLogger interface
type eventLogger struct {
	store EventStore
	clock clockwork.Clock
}

// NewEventLogger creates a new event logger
func NewEventLogger(store EventStore, clock clockwork.Clock) EventLogger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &eventLogger{
		store: store,
		clock: clock,
	}
}

// Record validates and persists an event
func (l *eventLogger) Record(ctx context.Context, event *Event) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}

	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid audit event: %w", err)
	}

	if err := l.store.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}

	return nil
}

// SessionEvents returns the most recent events for a session
func (l *eventLogger) SessionEvents(ctx context.Context, code string, limit int) ([]*Event, error) {
	if code == "" {
		return nil, fmt.Errorf("session code cannot be empty")
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	events, err := l.store.GetEventsBySession(ctx, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session events: %w", err)
	}

	return events, nil
}

// Prune removes events older than the retention window
func (l *eventLogger) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	n, err := l.store.DeleteEventsBefore(ctx, l.clock.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return n, nil
}
