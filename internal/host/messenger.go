package host

import (
	"context"
	"errors"

	"github.com/danmuck/linkbridge/internal/protocol"
)

var (
	ErrNotConnected = errors.New("host: messenger not connected")
	ErrNoSession    = errors.New("host: no active session")
	ErrNotPairing   = errors.New("host: messenger not awaiting pairing")
	ErrUnsupported  = errors.New("host: operation not supported by messenger")
)

// EventSink receives lifecycle events raised by a Messenger.
type EventSink func(protocol.Event)

// Outgoing is one message handed to the messaging service.
type Outgoing struct {
	Target   string
	Text     string
	Document *protocol.Document
}

// Messenger is the external messaging connection. Start is idempotent:
// while pairing or connected it re-announces the current status.
type Messenger interface {
	Start(ctx context.Context, sink EventSink) error
	Send(ctx context.Context, msg Outgoing) error
	Identity(ctx context.Context) (string, error)
	// Logout ends the account session and reports a "logged out" close.
	Logout(ctx context.Context) error
	Close() error
}

// Pairer is implemented by messengers whose pairing can be confirmed out of band.
type Pairer interface {
	ConfirmPairing() error
}

// Dropper is implemented by messengers that can simulate a network loss.
type Dropper interface {
	Drop(reason string) error
}

// MessengerFactory builds the messenger for a new session.
type MessengerFactory func(sessionID string) Messenger
