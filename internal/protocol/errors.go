package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent   = errors.New("protocol: unknown event")
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)

// SessionError is an unrecoverable fault reported by the session host, or an
// inbound message that could not be matched against the event schema.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("protocol: session error: %s", e.Message)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}
