package audit

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the in-memory event buffer
const DefaultMemoryCapacity = 10000

// MemoryStore implements EventStore as a bounded in-memory buffer. The oldest
// events are dropped once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []*Event
	capacity int
}

// NewMemoryStore creates a new in-memory event store
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		events:   make([]*Event, 0, capacity),
		capacity: capacity,
	}
}

// CreateEvent appends an event, evicting the oldest if full
func (s *MemoryStore) CreateEvent(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.capacity {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}

	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// GetEventsBySession returns events for a session, newest first
func (s *MemoryStore) GetEventsBySession(ctx context.Context, code string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*Event
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if s.events[i].SessionCode == code {
			cp := *s.events[i]
			events = append(events, &cp)
		}
	}
	return events, nil
}

// DeleteEventsBefore removes events older than cutoff
func (s *MemoryStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.events) - len(kept)
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = nil
	}
	s.events = kept
	return removed, nil
}

var _ EventStore = (*MemoryStore)(nil)
