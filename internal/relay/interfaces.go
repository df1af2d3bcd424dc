package relay

import (
	"github.com/pairshare/pairshare/internal/sessions"
)

// Notifier delivers events to live connections. Deliver is called while a
// session lock is held, so implementations must only enqueue and never block
// on network I/O. Delivery is best effort.
type Notifier interface {
	Deliver(conn sessions.ConnectionID, event Event) error
}
