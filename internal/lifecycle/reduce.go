package lifecycle

// Transition reports what a reduction did so callers can run effects.
type Transition struct {
	From    State
	To      State
	Ignored bool
	// Reconnect is set when an unexpected close should reach the supervisor.
	Reconnect bool
	// ClearIntent is set by an explicit logout completion.
	ClearIntent bool
}

func (t Transition) Changed() bool { return t.From != t.To }

func (t Transition) EnteredConnected() bool { return t.Changed() && t.To == Connected }

func (t Transition) EnteredLoggedOut() bool { return t.Changed() && t.To == LoggedOut }

// Reduce applies ev to s. Lifecycle events arriving while no session runs
// (Idle or LoggedOut) are ignored; only StartRequested leaves those states.
func Reduce(s Snapshot, ev Event) (Snapshot, Transition) {
	tr := Transition{From: s.State, To: s.State}
	running := s.State.Running()

	switch e := ev.(type) {
	case StartRequested:
		if !running {
			s.State = Initializing
			s.PairingToken = ""
			s.CloseReason = ""
		}
	case PairingIssued:
		if !running {
			tr.Ignored = true
			break
		}
		s.State = AwaitingPairing
		s.PairingToken = e.Token
	case Opened:
		if !running {
			tr.Ignored = true
			break
		}
		s.State = Connected
		s.PairingToken = ""
		s.CloseReason = ""
	case Closed:
		if !running {
			tr.Ignored = true
			break
		}
		s.CloseReason = e.Reason
		s.PairingToken = ""
		if e.LoggedOut {
			s.State = LoggedOut
			break
		}
		s.State = Initializing
		tr.Reconnect = true
	case LogoutCompleted:
		if s.State == Idle {
			tr.Ignored = true
			break
		}
		s.State = LoggedOut
		s.PairingToken = ""
		tr.ClearIntent = true
	case HostReady:
		s.HostReady = true
		s.HostPort = e.Port
	default:
		tr.Ignored = true
	}

	tr.To = s.State
	return s, tr
}
