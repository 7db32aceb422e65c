package bridge

import "errors"

var (
	// ErrTransportNotStarted is returned by commands issued before any start-session.
	ErrTransportNotStarted = errors.New("bridge: session not started")
	ErrClosed              = errors.New("bridge: closed")
)
