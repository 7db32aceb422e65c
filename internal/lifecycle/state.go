// Package lifecycle derives the connection state from host lifecycle events.
//
// Reduce is a pure function over (Snapshot, Event); callers own the
// snapshot and apply effects after the reduction.
package lifecycle

type State string

const (
	Idle            State = "idle"
	Initializing    State = "initializing"
	AwaitingPairing State = "awaiting-pairing"
	Connected       State = "connected"
	LoggedOut       State = "logged-out"
)

func AllStates() []string {
	return []string{
		string(Idle),
		string(Initializing),
		string(AwaitingPairing),
		string(Connected),
		string(LoggedOut),
	}
}

// Running reports whether a session is believed to be alive on the host.
func (s State) Running() bool {
	return s == Initializing || s == AwaitingPairing || s == Connected
}

// Snapshot is the whole observable connection state.
type Snapshot struct {
	State        State  `json:"state"`
	PairingToken string `json:"pairingToken,omitempty"`
	HostReady    bool   `json:"hostReady"`
	HostPort     int    `json:"hostPort,omitempty"`
	CloseReason  string `json:"closeReason,omitempty"`
}

func Initial() Snapshot {
	return Snapshot{State: Idle}
}
