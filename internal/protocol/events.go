package protocol

import "strings"

// Event is the closed set of inbound payloads. Switch on the concrete type.
type Event interface {
	EventName() string
	Validate() error
}

type ServerReady struct {
	Port int `json:"port,omitempty"`
}

func (ServerReady) EventName() string { return EventServerReady }
func (ServerReady) Validate() error   { return nil }

// PairingToken carries the code a new device scans to pair.
type PairingToken struct {
	Code string `json:"token"`
}

func (PairingToken) EventName() string { return EventPairingToken }

func (p PairingToken) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return invalid("pairing-token missing token")
	}
	return nil
}

type ConnectionStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (ConnectionStatus) EventName() string { return EventConnectionStatus }

func (c ConnectionStatus) Validate() error {
	switch c.Status {
	case StatusOpen, StatusClosed:
		return nil
	default:
		return invalid("connection-status has status %q", c.Status)
	}
}

// LoggedOut reports whether a closed status ended the session.
func (c ConnectionStatus) LoggedOut() bool {
	return c.Status == StatusClosed && strings.EqualFold(strings.TrimSpace(c.Reason), ReasonLoggedOut)
}

// Reply is the shared shape of correlated responses.
type Reply struct {
	Token   string `json:"token,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Value   string `json:"value,omitempty"`
}

func (Reply) Validate() error { return nil }

// Correlated is implemented by replies that settle a pending request.
type Correlated interface {
	Event
	Result() Reply
}

type MessageSent struct{ Reply }

func (MessageSent) EventName() string { return EventMessageSent }
func (m MessageSent) Result() Reply   { return m.Reply }

type LogoutComplete struct{ Reply }

func (LogoutComplete) EventName() string { return EventLogoutComplete }
func (l LogoutComplete) Result() Reply   { return l.Reply }

type Identity struct{ Reply }

func (Identity) EventName() string { return EventIdentity }
func (i Identity) Result() Reply   { return i.Reply }

type SessionFailure struct {
	Message string `json:"message"`
}

func (SessionFailure) EventName() string { return EventSessionError }

func (s SessionFailure) Validate() error {
	if strings.TrimSpace(s.Message) == "" {
		return invalid("session-error missing message")
	}
	return nil
}
