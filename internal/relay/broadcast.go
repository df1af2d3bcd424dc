package relay

import (
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/sessions"
)

// The broadcast helpers must be called from inside a store.Update callback so
// that fan-out order matches history order.

func (e *Engine) broadcastMessage(s *sessions.Session, msg sessions.Message) {
	e.broadcast(s, Event{Type: EventNewMessage, Data: msg})
}

func (e *Engine) broadcastFileEvent(s *sessions.Session, rec sessions.FileRecord) {
	e.broadcast(s, Event{Type: EventNewFile, Data: rec})
}

// broadcastSystemEvent tells every member about a membership change of peer
func (e *Engine) broadcastSystemEvent(s *sessions.Session, kind EventType, peer sessions.ConnectionID) {
	e.broadcast(s, systemEvent(kind, peer))
}

func (e *Engine) broadcast(s *sessions.Session, event Event) {
	for _, m := range s.Members {
		e.deliver(m, event)
	}
}

// deliver is best effort: a closed or congested channel just misses the event
func (e *Engine) deliver(conn sessions.ConnectionID, event Event) {
	if err := e.notifier.Deliver(conn, event); err != nil {
		e.logger.Debug("Dropped event",
			zap.String("connection_id", string(conn)),
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}
