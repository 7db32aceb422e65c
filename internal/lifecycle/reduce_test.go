package lifecycle

import (
	"testing"

	"github.com/danmuck/linkbridge/internal/testutil/testlog"
)

func apply(s Snapshot, events ...Event) (Snapshot, []Transition) {
	out := make([]Transition, 0, len(events))
	for _, ev := range events {
		var tr Transition
		s, tr = Reduce(s, ev)
		out = append(out, tr)
	}
	return s, out
}

func TestPairingThenOpenClearsToken(t *testing.T) {
	testlog.Start(t)
	s, trs := apply(Initial(), StartRequested{}, PairingIssued{Token: "2@qr"})
	if s.State != AwaitingPairing || s.PairingToken != "2@qr" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if trs[0].To != Initializing {
		t.Fatalf("start should enter initializing, got %+v", trs[0])
	}

	s, tr := Reduce(s, Opened{})
	if s.State != Connected || s.PairingToken != "" || !tr.EnteredConnected() {
		t.Fatalf("open should connect and clear token, got %+v %+v", s, tr)
	}

	s, _ = Reduce(s, PairingIssued{Token: "2@again"})
	if s.State != AwaitingPairing || s.PairingToken != "2@again" {
		t.Fatalf("re-pairing from connected, got %+v", s)
	}
}

func TestOpenCloseOpenSequence(t *testing.T) {
	testlog.Start(t)
	s, _ := Reduce(Initial(), StartRequested{})
	var states []State
	for _, ev := range []Event{Opened{}, Closed{Reason: "stream errored"}, Opened{}} {
		var tr Transition
		s, tr = Reduce(s, ev)
		states = append(states, s.State)
		if _, ok := ev.(Closed); ok && !tr.Reconnect {
			t.Fatalf("unexpected close should request reconnect")
		}
	}
	want := []State{Connected, Initializing, Connected}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d got=%s want=%s", i, states[i], want[i])
		}
	}
}

func TestCloseWithLogoutReasonIsTerminal(t *testing.T) {
	testlog.Start(t)
	s, _ := apply(Initial(), StartRequested{}, PairingIssued{Token: "t"})
	s, tr := Reduce(s, Closed{Reason: "logged out", LoggedOut: true})
	if s.State != LoggedOut || tr.Reconnect || s.PairingToken != "" {
		t.Fatalf("logged-out close got %+v %+v", s, tr)
	}
	if tr.ClearIntent {
		t.Fatalf("remote logout close does not clear intent")
	}

	for _, ev := range []Event{Opened{}, PairingIssued{Token: "x"}, Closed{Reason: "late"}} {
		next, tr := Reduce(s, ev)
		if next.State != LoggedOut || !tr.Ignored {
			t.Fatalf("%T should be ignored while logged out, got %+v", ev, next)
		}
	}

	s, tr = Reduce(s, StartRequested{})
	if s.State != Initializing || !tr.Changed() {
		t.Fatalf("start should re-enter initializing, got %+v", s)
	}
	s, _ = Reduce(s, PairingIssued{Token: "fresh"})
	if s.State != AwaitingPairing || s.PairingToken != "fresh" {
		t.Fatalf("expected fresh pairing, got %+v", s)
	}
}

func TestLogoutCompletedClearsState(t *testing.T) {
	testlog.Start(t)
	s, _ := apply(Initial(), StartRequested{}, PairingIssued{Token: "t"})
	s, tr := Reduce(s, LogoutCompleted{})
	if s.State != LoggedOut || s.PairingToken != "" || !tr.ClearIntent || !tr.EnteredLoggedOut() {
		t.Fatalf("logout got %+v %+v", s, tr)
	}

	if _, tr := Reduce(Initial(), LogoutCompleted{}); !tr.Ignored {
		t.Fatalf("logout while idle should be ignored")
	}
}

func TestIdleIgnoresLifecycleEvents(t *testing.T) {
	testlog.Start(t)
	for _, ev := range []Event{PairingIssued{Token: "t"}, Opened{}, Closed{}} {
		s, tr := Reduce(Initial(), ev)
		if s.State != Idle || !tr.Ignored {
			t.Fatalf("%T from idle got %+v", ev, s)
		}
	}
}

func TestHostReadyDoesNotChangeState(t *testing.T) {
	testlog.Start(t)
	s, tr := Reduce(Initial(), HostReady{Port: 3000})
	if s.State != Idle || tr.Changed() || !s.HostReady || s.HostPort != 3000 {
		t.Fatalf("host ready got %+v", s)
	}
}

func TestStartWhileRunningKeepsState(t *testing.T) {
	testlog.Start(t)
	s, _ := apply(Initial(), StartRequested{}, Opened{})
	s, tr := Reduce(s, StartRequested{})
	if s.State != Connected || tr.Changed() {
		t.Fatalf("start while connected should be a no-op, got %+v", s)
	}
}
