package relay

import (
	"errors"
	"fmt"

	"github.com/pairshare/pairshare/internal/sessions"
)

var (
	// ErrAlreadyJoined is returned when a connection already belongs to a session
	ErrAlreadyJoined = errors.New("connection already joined a session")

	// ErrNotMember is returned when a connection acts on a session it has not joined
	ErrNotMember = errors.New("connection is not a member of the session")

	// ErrEmptyMessage is returned for blank message text
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrMessageTooLong is returned when message text exceeds the configured limit
	ErrMessageTooLong = errors.New("message text is too long")

	// ErrInvalidFile is returned when an announced file was never uploaded
	ErrInvalidFile = errors.New("invalid file announcement")
)

// ReasonInternal is shown for failures the client cannot act on
const ReasonInternal = "Internal server error"

// Reason maps an error to the message shown to the originating connection
func Reason(err error) string {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		return "Session not found or has expired"
	case errors.Is(err, sessions.ErrSessionFull):
		return "Session is already full"
	case errors.Is(err, sessions.ErrCodeSpaceExhausted):
		return "Could not create a session, please try again"
	case errors.Is(err, ErrAlreadyJoined):
		return "You are already in a session"
	case errors.Is(err, ErrNotMember):
		return "You are not a member of this session"
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, ErrMessageTooLong):
		return "Message is too long"
	case errors.Is(err, ErrInvalidFile):
		return "File was not uploaded"
	default:
		return ReasonInternal
	}
}

func tooLong(limit int) error {
	return fmt.Errorf("%w (max %d characters)", ErrMessageTooLong, limit)
}
