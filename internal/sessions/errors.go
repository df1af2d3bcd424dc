package sessions

import (
	"fmt"
)

// SessionError represents errors related to session operations
type SessionError struct {
	Type    string
	Code    string
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Code == "" {
		if e.Cause != nil {
			return fmt.Sprintf("session error [%s]: %s (caused by: %v)", e.Type, e.Message, e.Cause)
		}
		return fmt.Sprintf("session error [%s]: %s", e.Type, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("session error [%s] for session %s: %s (caused by: %v)", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("session error [%s] for session %s: %s", e.Type, e.Code, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Is matches any SessionError of the same type, so errors carrying a session
// code still satisfy errors.Is against the package sentinels.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Code == "" || t.Code == e.Code)
}

// Session error types
const (
	SessionErrorTypeNotFound  = "not_found"
	SessionErrorTypeFull      = "full"
	SessionErrorTypeExhausted = "code_space_exhausted"
)

// Sentinels for errors.Is comparisons
var (
	ErrSessionNotFound    = &SessionError{Type: SessionErrorTypeNotFound, Message: "session not found"}
	ErrSessionFull        = &SessionError{Type: SessionErrorTypeFull, Message: "session is full"}
	ErrCodeSpaceExhausted = &SessionError{Type: SessionErrorTypeExhausted, Message: "could not generate a free session code"}
)

// NewSessionNotFoundError creates an error for a code with no live session
func NewSessionNotFoundError(code string) *SessionError {
	return &SessionError{
		Type:    SessionErrorTypeNotFound,
		Code:    code,
		Message: "session not found or expired",
	}
}

// NewSessionFullError creates an error for a join against a session at capacity
func NewSessionFullError(code string) *SessionError {
	return &SessionError{
		Type:    SessionErrorTypeFull,
		Code:    code,
		Message: fmt.Sprintf("session already has %d members", MaxMembers),
	}
}

// NewCodeSpaceExhaustedError creates an error for when code generation keeps colliding
func NewCodeSpaceExhaustedError(attempts int) *SessionError {
	return &SessionError{
		Type:    SessionErrorTypeExhausted,
		Message: fmt.Sprintf("no free session code after %d attempts", attempts),
	}
}
