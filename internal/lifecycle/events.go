package lifecycle

// Event is one input to Reduce.
type Event interface {
	lifecycleEvent()
}

// StartRequested is emitted when a start-session command is issued.
type StartRequested struct{}

type PairingIssued struct {
	Token string
}

type Opened struct{}

type Closed struct {
	Reason    string
	LoggedOut bool
}

// LogoutCompleted is a successful logout-complete reply.
type LogoutCompleted struct{}

type HostReady struct {
	Port int
}

func (StartRequested) lifecycleEvent()  {}
func (PairingIssued) lifecycleEvent()   {}
func (Opened) lifecycleEvent()          {}
func (Closed) lifecycleEvent()          {}
func (LogoutCompleted) lifecycleEvent() {}
func (HostReady) lifecycleEvent()       {}
