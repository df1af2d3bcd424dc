package relay

import (
	"github.com/pairshare/pairshare/internal/sessions"
)

// EventType names an outbound event delivered to a connection
type EventType string

const (
	EventSessionCreated EventType = "session-created"
	EventSessionJoined  EventType = "session-joined"
	EventError          EventType = "error"
	EventNewMessage     EventType = "new-message"
	EventNewFile        EventType = "new-file"
	EventMessageHistory EventType = "message-history"
	EventFileHistory    EventType = "file-history"
	EventPeerJoined     EventType = "peer-joined"
	EventPeerLeft       EventType = "peer-left"
	EventSessionExpired EventType = "session-expired"
	EventSessionEnded   EventType = "session-ended"
)

// Event is a single outbound frame. System events describe membership
// changes and are never part of a session's history.
type Event struct {
	Type   EventType `json:"type"`
	System bool      `json:"system,omitempty"`
	Data   any       `json:"data,omitempty"`
}

// SessionPayload carries a session code
type SessionPayload struct {
	Code string `json:"code"`
}

// PeerPayload identifies the peer a system event is about
type PeerPayload struct {
	ID sessions.ConnectionID `json:"id"`
}

// ErrorPayload carries a user-visible failure reason
type ErrorPayload struct {
	Reason string `json:"reason"`
}

func sessionEvent(typ EventType, code string) Event {
	return Event{Type: typ, Data: SessionPayload{Code: code}}
}

func systemEvent(typ EventType, peer sessions.ConnectionID) Event {
	return Event{Type: typ, System: true, Data: PeerPayload{ID: peer}}
}

// ErrorEvent builds the event sent to a connection whose request failed
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Data: ErrorPayload{Reason: Reason(err)}}
}
