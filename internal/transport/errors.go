package transport

import (
	"errors"

	"github.com/pairshare/pairshare/internal/relay"
)

var (
	// ErrUnknownConnection is returned when delivering to a connection the hub does not hold
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionClosed is returned when delivering to a connection that is shutting down
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSlowConsumer is returned when a connection's send queue is full; the
	// connection is closed
	ErrSlowConsumer = errors.New("send queue full")

	errInvalidRequest = errors.New("invalid request")
)

func errorEvent(err error) relay.Event {
	if errors.Is(err, errInvalidRequest) {
		return relay.Event{Type: relay.EventError, Data: relay.ErrorPayload{Reason: "Invalid request"}}
	}
	return relay.ErrorEvent(err)
}
