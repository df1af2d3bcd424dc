package audit

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// EventType names a session lifecycle transition
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventMemberJoined   EventType = "member_joined"
	EventMemberLeft     EventType = "member_left"
	EventMessageSent    EventType = "message_sent"
	EventFileAnnounced  EventType = "file_announced"
	EventSessionClosed  EventType = "session_closed"  // last member left
	EventSessionExpired EventType = "session_expired" // reaped for idleness
	EventSessionEnded   EventType = "session_ended"   // terminated explicitly
)

// Event represents an audit log entry for a session lifecycle transition.
// Message bodies are never recorded.
type Event struct {
	bun.BaseModel `bun:"table:session_events,alias:se"`

	EventID      string                 `bun:"id,pk" json:"event_id"`
	SessionCode  string                 `bun:"session_code,notnull" json:"session_code"`
	Type         EventType              `bun:"type,notnull" json:"type"`
	ConnectionID string                 `bun:"connection_id" json:"connection_id,omitempty"`
	Filename     string                 `bun:"filename" json:"filename,omitempty"`
	Timestamp    time.Time              `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`
	Details      map[string]interface{} `bun:"details,type:jsonb" json:"details,omitempty"`
}

// Validate validates the event
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event ID cannot be empty")
	}
	if e.SessionCode == "" {
		return fmt.Errorf("session code cannot be empty")
	}
	switch e.Type {
	case EventSessionCreated, EventMemberJoined, EventMemberLeft, EventMessageSent,
		EventFileAnnounced, EventSessionClosed, EventSessionExpired, EventSessionEnded:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// SessionEventIndexes are created alongside the session_events table
var SessionEventIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_session_events_code ON session_events (session_code, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events (timestamp)`,
}
