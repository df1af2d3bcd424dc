package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// InMemoryStore implements SessionStore with a per-session mutex. The table
// lock only guards the map itself and is never held while a session lock is
// being acquired.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	codes    CodeGenerator
	clock    clockwork.Clock
}

type entry struct {
	mu      sync.Mutex
	session *Session
	deleted bool
}

// Tx is the handle passed to Update callbacks. It is only valid for the
// duration of the callback.
type Tx struct {
	Session *Session
	clock   clockwork.Clock
	remove  bool
}

// Now returns the store's current time
func (tx *Tx) Now() time.Time {
	return tx.clock.Now()
}

// Touch refreshes the session's last activity
func (tx *Tx) Touch() {
	tx.Session.LastActivity = tx.clock.Now()
}

// Delete marks the session for removal when the callback returns without error
func (tx *Tx) Delete() {
	tx.remove = true
}

// NewInMemoryStore creates a new in-memory store. Nil arguments fall back to
// the real clock and the random base-36 generator.
func NewInMemoryStore(clock clockwork.Clock, codes CodeGenerator) *InMemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if codes == nil {
		codes = NewRandomCodeGenerator()
	}
	return &InMemoryStore{
		sessions: make(map[string]*entry),
		codes:    codes,
		clock:    clock,
	}
}

// Create inserts an empty session under a code not used by any live session
func (s *InMemoryStore) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code := s.codes.Generate()
		if _, exists := s.sessions[code]; exists {
			continue
		}

		now := s.clock.Now()
		s.sessions[code] = &entry{
			session: &Session{
				Code:         code,
				Members:      make([]ConnectionID, 0, MaxMembers),
				CreatedAt:    now,
				LastActivity: now,
			},
		}
		return code, nil
	}

	return "", NewCodeSpaceExhaustedError(MaxCodeAttempts)
}

// Get retrieves a snapshot of a session by code
func (s *InMemoryStore) Get(ctx context.Context, code string) (*Session, error) {
	var snapshot *Session
	_, err := s.Update(ctx, code, func(tx *Tx) error {
		snapshot = tx.Session.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Update runs fn under the session's lock
func (s *InMemoryStore) Update(ctx context.Context, code string, fn func(tx *Tx) error) (*Session, error) {
	e := s.lookup(code)
	if e == nil {
		return nil, NewSessionNotFoundError(code)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// the entry may have been removed while we waited for its lock
	if e.deleted {
		return nil, NewSessionNotFoundError(code)
	}

	tx := &Tx{Session: e.session, clock: s.clock}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if !tx.remove {
		return nil, nil
	}

	s.removeLocked(code, e)
	return e.session.Clone(), nil
}

// Delete removes a session. The caller is responsible for blob cleanup using
// the returned snapshot.
func (s *InMemoryStore) Delete(ctx context.Context, code string) (*Session, error) {
	return s.Update(ctx, code, func(tx *Tx) error {
		tx.Delete()
		return nil
	})
}

// Touch sets the session's last activity to now
func (s *InMemoryStore) Touch(ctx context.Context, code string) error {
	_, err := s.Update(ctx, code, func(tx *Tx) error {
		tx.Touch()
		return nil
	})
	return err
}

// Codes returns the codes of all live sessions
func (s *InMemoryStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	return codes
}

// Len returns the number of live sessions
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryStore) lookup(code string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[code]
}

// removeLocked must be called with e.mu held
func (s *InMemoryStore) removeLocked(code string, e *entry) {
	e.deleted = true

	s.mu.Lock()
	if s.sessions[code] == e {
		delete(s.sessions, code)
	}
	s.mu.Unlock()
}

var _ SessionStore = (*InMemoryStore)(nil)
