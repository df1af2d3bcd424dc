package audit

import (
	"context"
	"time"
)

// EventLogger defines the interface for recording session lifecycle events
type EventLogger interface {
	// Record validates and persists an event, filling in its ID and timestamp if unset
	Record(ctx context.Context, event *Event) error

	// SessionEvents returns the most recent events for a session, newest first
	SessionEvents(ctx context.Context, code string, limit int) ([]*Event, error)

	// Prune removes events older than the retention window
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

// EventStore defines the interface for event persistence
type EventStore interface {
	// CreateEvent persists a new event
	CreateEvent(ctx context.Context, event *Event) error

	// GetEventsBySession returns events for a session, newest first
	GetEventsBySession(ctx context.Context, code string, limit int) ([]*Event, error)

	// DeleteEventsBefore removes events older than cutoff
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
