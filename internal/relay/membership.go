package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Join adds conn to the session. On success the joiner receives the full
// message and file history and the existing member is told a peer joined;
// both happen under the session lock so no concurrent broadcast can slip
// between the replay and the joiner's first live event.
func (e *Engine) Join(ctx context.Context, code string, conn sessions.ConnectionID) error {
	code = sessions.NormalizeCode(code)

	if err := e.bind(conn, code); err != nil {
		return err
	}

	if err := e.join(ctx, code, conn, false); err != nil {
		e.unbind(conn, code)
		e.logger.Debug("Join rejected",
			zap.String("session_code", code),
			zap.String("connection_id", string(conn)),
			zap.Error(err))
		return err
	}

	e.logger.Info("Member joined",
		zap.String("session_code", code),
		zap.String("connection_id", string(conn)))
	e.record(ctx, code, audit.EventMemberJoined, conn, "", nil)

	return nil
}

// Leave removes conn from whatever session it belongs to. When it was the
// last member the session is deleted and its blobs reclaimed before Leave
// returns. Leave ignores cancellation of ctx: a disconnect must always finish
// its bookkeeping.
func (e *Engine) Leave(ctx context.Context, conn sessions.ConnectionID) {
	ctx = context.WithoutCancel(ctx)

	code, ok := e.SessionOf(conn)
	if !ok || code == "" {
		return
	}
	e.unbind(conn, code)

	final, err := e.store.Update(ctx, code, func(tx *sessions.Tx) error {
		s := tx.Session
		remaining := s.Members[:0]
		for _, m := range s.Members {
			if m != conn {
				remaining = append(remaining, m)
			}
		}
		s.Members = remaining

		if len(s.Members) == 0 {
			tx.Delete()
			return nil
		}

		e.broadcastSystemEvent(s, EventPeerLeft, conn)
		return nil
	})
	if err != nil {
		// already reaped or ended
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			e.logger.Error("Failed to leave session",
				zap.String("session_code", code),
				zap.String("connection_id", string(conn)),
				zap.Error(err))
		}
		return
	}

	e.logger.Info("Member left",
		zap.String("session_code", code),
		zap.String("connection_id", string(conn)))
	e.record(ctx, code, audit.EventMemberLeft, conn, "", nil)

	if final != nil {
		e.terminate(ctx, final, "", audit.EventSessionClosed)
	}
}

// SessionOf returns the code of the session conn currently belongs to
func (e *Engine) SessionOf(conn sessions.ConnectionID) (string, bool) {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()

	code, ok := e.bindings[conn]
	return code, ok
}

func (e *Engine) join(ctx context.Context, code string, conn sessions.ConnectionID, creator bool) error {
	_, err := e.store.Update(ctx, code, func(tx *sessions.Tx) error {
		s := tx.Session
		if s.IsFull() {
			return sessions.NewSessionFullError(code)
		}

		existing := append([]sessions.ConnectionID(nil), s.Members...)
		s.Members = append(s.Members, conn)
		tx.Touch()

		if creator {
			e.deliver(conn, sessionEvent(EventSessionCreated, code))
			return nil
		}

		messages, files := s.Replay()
		e.deliver(conn, sessionEvent(EventSessionJoined, code))
		e.deliver(conn, Event{Type: EventMessageHistory, Data: messages})
		e.deliver(conn, Event{Type: EventFileHistory, Data: files})

		for _, m := range existing {
			e.deliver(m, systemEvent(EventPeerJoined, conn))
		}
		return nil
	})
	return err
}

// bind reserves conn for code; an empty code reserves it for a session that
// is about to be created.
func (e *Engine) bind(conn sessions.ConnectionID, code string) error {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()

	if _, bound := e.bindings[conn]; bound {
		return ErrAlreadyJoined
	}
	e.bindings[conn] = code
	return nil
}

func (e *Engine) rebind(conn sessions.ConnectionID, code string) {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()
	e.bindings[conn] = code
}

// unbind releases conn only if it is still bound to code
func (e *Engine) unbind(conn sessions.ConnectionID, code string) {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()

	if current, ok := e.bindings[conn]; ok && current == code {
		delete(e.bindings, conn)
	}
}
