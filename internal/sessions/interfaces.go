package sessions

import "context"

// SessionStore defines the interface for the authoritative session table.
// Implementations serialize all access to a given code and never hand out
// references to live session state.
type SessionStore interface {
	// Create inserts an empty session under a freshly generated code
	Create(ctx context.Context) (string, error)

	// Get returns a snapshot of the session
	Get(ctx context.Context, code string) (*Session, error)

	// Update runs fn while holding the session's lock. If fn calls tx.Delete
	// the session is removed before the lock is released and its final
	// snapshot is returned.
	Update(ctx context.Context, code string, fn func(tx *Tx) error) (*Session, error)

	// Delete removes the session and returns its final snapshot
	Delete(ctx context.Context, code string) (*Session, error)

	// Touch refreshes the session's last-activity timestamp
	Touch(ctx context.Context, code string) error

	// Codes returns the codes of all live sessions
	Codes() []string

	// Len returns the number of live sessions
	Len() int
}
