package channel

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrClosed       = errors.New("channel: transport closed")
	ErrUnknownCodec = errors.New("channel: unknown codec")
	ErrEmptyName    = errors.New("channel: message name required")
)

// Message is one named event with an opaque JSON payload.
type Message struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Transport is one side of the duplex channel.
type Transport interface {
	// Send transmits msg without waiting for any acknowledgement.
	Send(ctx context.Context, msg Message) error
	// Inbound delivers messages from the peer in receive order.
	Inbound() <-chan Message
	// Done is closed once the transport stops delivering messages.
	Done() <-chan struct{}
	// Err reports why the transport stopped, nil while open or after a clean Close.
	Err() error
	Close() error
}
