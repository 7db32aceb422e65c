package host

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type SimulatedConfig struct {
	Identity string
	// AutoPairAfter confirms pairing on its own; zero waits for ConfirmPairing.
	AutoPairAfter time.Duration
	// PairingTTL rotates the pairing token while unpaired; zero disables rotation.
	PairingTTL time.Duration
	Clock      clockwork.Clock
}

type simState string

const (
	simIdle    simState = "idle"
	simPairing simState = "pairing"
	simOpen    simState = "open"
	simClosed  simState = "closed"
)

// SentMessage is a message accepted by the simulated service.
type SentMessage struct {
	Outgoing
	At time.Time
}

// SimulatedMessenger stands in for a real messaging service. Pairing
// credentials survive a dropped connection, so a restart after Drop goes
// straight to open; Logout discards them.
type SimulatedMessenger struct {
	cfg   SimulatedConfig
	clock clockwork.Clock

	mu        sync.Mutex
	sink      EventSink
	state     simState
	paired    bool
	token     string
	pairTimer clockwork.Timer
	rotTimer  clockwork.Timer
	gen       uint64
	sent      []SentMessage
}

var (
	_ Messenger = (*SimulatedMessenger)(nil)
	_ Pairer    = (*SimulatedMessenger)(nil)
	_ Dropper   = (*SimulatedMessenger)(nil)
)

func NewSimulatedMessenger(cfg SimulatedConfig) *SimulatedMessenger {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if strings.TrimSpace(cfg.Identity) == "" {
		cfg.Identity = "device.local"
	}
	return &SimulatedMessenger{cfg: cfg, clock: cfg.Clock, state: simIdle}
}

// SimulatedFactory builds one simulated messenger per session.
func SimulatedFactory(cfg SimulatedConfig) MessengerFactory {
	return func(string) Messenger { return NewSimulatedMessenger(cfg) }
}

func (m *SimulatedMessenger) Start(ctx context.Context, sink EventSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sink = sink
	var ev protocol.Event
	switch m.state {
	case simOpen:
		ev = protocol.ConnectionStatus{Status: protocol.StatusOpen}
	case simPairing:
		ev = protocol.PairingToken{Code: m.token}
	default:
		if m.paired {
			m.state = simOpen
			ev = protocol.ConnectionStatus{Status: protocol.StatusOpen}
		} else {
			ev = m.beginPairingLocked()
		}
	}
	m.mu.Unlock()
	m.emit(sink, ev)
	return nil
}

func (m *SimulatedMessenger) beginPairingLocked() protocol.Event {
	m.state = simPairing
	m.token = newPairingCode()
	m.gen++
	gen := m.gen
	m.stopTimersLocked()
	if m.cfg.AutoPairAfter > 0 {
		m.pairTimer = m.clock.AfterFunc(m.cfg.AutoPairAfter, func() { m.autoPair(gen) })
	}
	if m.cfg.PairingTTL > 0 {
		m.rotTimer = m.clock.AfterFunc(m.cfg.PairingTTL, func() { m.rotate(gen) })
	}
	return protocol.PairingToken{Code: m.token}
}

func (m *SimulatedMessenger) autoPair(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	_ = m.ConfirmPairing()
}

func (m *SimulatedMessenger) rotate(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != simPairing {
		m.mu.Unlock()
		return
	}
	m.token = newPairingCode()
	if m.cfg.PairingTTL > 0 {
		m.rotTimer = m.clock.AfterFunc(m.cfg.PairingTTL, func() { m.rotate(gen) })
	}
	sink, ev := m.sink, protocol.PairingToken{Code: m.token}
	m.mu.Unlock()
	m.emit(sink, ev)
}

// ConfirmPairing completes pairing as if the code had been scanned.
func (m *SimulatedMessenger) ConfirmPairing() error {
	m.mu.Lock()
	if m.state != simPairing {
		m.mu.Unlock()
		return ErrNotPairing
	}
	m.state = simOpen
	m.paired = true
	m.token = ""
	m.gen++
	m.stopTimersLocked()
	sink := m.sink
	m.mu.Unlock()
	m.emit(sink, protocol.ConnectionStatus{Status: protocol.StatusOpen})
	return nil
}

// Drop closes the connection with reason, keeping pairing credentials.
func (m *SimulatedMessenger) Drop(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "connection lost"
	}
	m.mu.Lock()
	if m.state != simOpen && m.state != simPairing {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.state = simClosed
	m.token = ""
	m.gen++
	m.stopTimersLocked()
	sink := m.sink
	m.mu.Unlock()
	m.emit(sink, protocol.ConnectionStatus{Status: protocol.StatusClosed, Reason: reason})
	return nil
}

func (m *SimulatedMessenger) Send(ctx context.Context, msg Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != simOpen {
		return ErrNotConnected
	}
	m.sent = append(m.sent, SentMessage{Outgoing: msg, At: m.clock.Now()})
	return nil
}

func (m *SimulatedMessenger) Identity(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != simOpen {
		return "", ErrNotConnected
	}
	return m.cfg.Identity, nil
}

func (m *SimulatedMessenger) Logout(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.state == simIdle {
		m.mu.Unlock()
		return ErrNotConnected
	}
	wasLive := m.state == simOpen || m.state == simPairing
	m.state = simClosed
	m.paired = false
	m.token = ""
	m.gen++
	m.stopTimersLocked()
	sink := m.sink
	m.mu.Unlock()
	if wasLive {
		m.emit(sink, protocol.ConnectionStatus{Status: protocol.StatusClosed, Reason: protocol.ReasonLoggedOut})
	}
	return nil
}

func (m *SimulatedMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.stopTimersLocked()
	m.sink = nil
	return nil
}

// Sent returns a copy of the accepted messages.
func (m *SimulatedMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Status reports the simulated connection state and current pairing token.
func (m *SimulatedMessenger) Status() (state string, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.state), m.token
}

func (m *SimulatedMessenger) stopTimersLocked() {
	if m.pairTimer != nil {
		m.pairTimer.Stop()
		m.pairTimer = nil
	}
	if m.rotTimer != nil {
		m.rotTimer.Stop()
		m.rotTimer = nil
	}
}

func (m *SimulatedMessenger) emit(sink EventSink, ev protocol.Event) {
	if sink != nil && ev != nil {
		sink(ev)
	}
}

func newPairingCode() string {
	return "2@" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
