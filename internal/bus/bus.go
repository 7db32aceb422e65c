package bus

import (
	"github.com/danmuck/linkbridge/internal/intent"
	"github.com/danmuck/linkbridge/internal/lifecycle"
)

// StateChange is published on every connection state transition.
type StateChange struct {
	From     lifecycle.State
	To       lifecycle.State
	Snapshot lifecycle.Snapshot
}

type FaultKind string

const (
	FaultMaxReconnects FaultKind = "max-reconnects"
	FaultSession       FaultKind = "session-error"
	FaultTransport     FaultKind = "transport"
)

// Fault is an error with no waiting caller.
type Fault struct {
	Kind FaultKind
	Err  error
}

type HostReady struct {
	Port int
}

// Bus groups the bridge's outward notifications.
type Bus struct {
	States *Topic[StateChange]
	// Intents carries each released intent exactly once. Use Subscribe when
	// none may be lost; Watch drops values for a full buffer.
	Intents *Topic[intent.Intent]
	Faults  *Topic[Fault]
	Ready   *Topic[HostReady]
}

func New() *Bus {
	return &Bus{
		States:  NewTopic[StateChange]("states"),
		Intents: NewTopic[intent.Intent]("intents"),
		Faults:  NewTopic[Fault]("faults"),
		Ready:   NewTopic[HostReady]("ready"),
	}
}
