package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const emitTimeout = 5 * time.Second

type Option func(*Host)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Host) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithPort sets the port announced in server-ready.
func WithPort(port int) Option {
	return func(h *Host) { h.port = port }
}

// Host owns at most one session and one attached channel at a time. The
// session outlives the channel so a reattaching bridge finds it intact.
type Host struct {
	factory MessengerFactory
	clock   clockwork.Clock
	port    int
	logger  zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	transport channel.Transport
	session   *Session
	closed    bool
}

func New(factory MessengerFactory, opts ...Option) *Host {
	if factory == nil {
		factory = SimulatedFactory(SimulatedConfig{})
	}
	base, cancel := context.WithCancel(context.Background())
	h := &Host{
		factory: factory,
		clock:   clockwork.NewRealClock(),
		logger:  log.With().Str("component", "host").Logger(),
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach serves t until it closes or ctx ends. A newer Attach replaces and
// closes the previous channel.
func (h *Host) Attach(ctx context.Context, t channel.Transport) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = t.Close()
		return channel.ErrClosed
	}
	prev := h.transport
	h.transport = t
	h.mu.Unlock()
	if prev != nil && prev != t {
		h.logger.Info().Msg("host.channel replaced")
		_ = prev.Close()
	}
	defer h.detach(t)

	h.emit(protocol.ServerReady{Port: h.port})
	h.logger.Info().Int("port", h.port).Msg("host.channel attached")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Done():
			return t.Err()
		case msg := <-t.Inbound():
			h.dispatch(msg)
		}
	}
}

func (h *Host) detach(t channel.Transport) {
	h.mu.Lock()
	if h.transport == t {
		h.transport = nil
	}
	h.mu.Unlock()
}

func (h *Host) dispatch(msg channel.Message) {
	observability.RecordChannelMessage("host", "in", msg.Name)
	cmd, err := protocol.DecodeCommand(msg)
	if err != nil {
		h.logger.Warn().Err(err).Str("command", msg.Name).Msg("host.command rejected")
		observability.RecordHostCommand(msg.Name, false)
		h.rejectMalformed(msg, err)
		return
	}

	switch c := cmd.(type) {
	case protocol.StartSession:
		err = h.startSession()
	case protocol.SendMessage:
		err = h.sendMessage(c)
	case protocol.GetIdentity:
		err = h.identity(c)
	case protocol.Logout:
		err = h.logout(c)
	}
	observability.RecordHostCommand(cmd.CommandName(), err == nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("command", cmd.CommandName()).Str("token", protocol.RequestTokenOf(cmd)).Msg("host.command failed")
	}
}

// rejectMalformed answers a request that failed validation so its caller
// does not wait for a timeout.
func (h *Host) rejectMalformed(msg channel.Message, cause error) {
	var probe struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(msg.Payload, &probe)
	reply := protocol.Reply{Token: probe.Token, Error: cause.Error()}
	switch {
	case probe.Token == "":
		h.emit(protocol.SessionFailure{Message: cause.Error()})
	case msg.Name == protocol.CommandSendMessage:
		h.emit(protocol.MessageSent{Reply: reply})
	case msg.Name == protocol.CommandGetIdentity:
		h.emit(protocol.Identity{Reply: reply})
	case msg.Name == protocol.CommandLogout:
		h.emit(protocol.LogoutComplete{Reply: reply})
	default:
		h.emit(protocol.SessionFailure{Message: cause.Error()})
	}
}

func (h *Host) startSession() error {
	h.mu.Lock()
	s := h.session
	if s == nil {
		s = newSession(h.base, h.factory, h.clock.Now())
		h.session = s
		h.logger.Info().Str("session", s.ID).Msg("host.session created")
	}
	h.mu.Unlock()

	if err := s.Messenger.Start(s.Context(), h.emit); err != nil {
		h.emit(protocol.SessionFailure{Message: err.Error()})
		return err
	}
	return nil
}

func (h *Host) sendMessage(c protocol.SendMessage) error {
	s, err := h.current()
	if err == nil {
		err = s.Messenger.Send(s.Context(), Outgoing{Target: c.Target, Text: c.Text, Document: c.Document})
	}
	h.emit(protocol.MessageSent{Reply: replyFor(c.Token, "", err)})
	return err
}

func (h *Host) identity(c protocol.GetIdentity) error {
	s, err := h.current()
	var id string
	if err == nil {
		id, err = s.Messenger.Identity(s.Context())
	}
	h.emit(protocol.Identity{Reply: replyFor(c.Token, id, err)})
	return err
}

func (h *Host) logout(c protocol.Logout) error {
	s, err := h.current()
	if err == nil {
		err = s.Messenger.Logout(s.Context())
	}
	h.emit(protocol.LogoutComplete{Reply: replyFor(c.Token, "", err)})
	if err != nil {
		return err
	}
	h.endSession(s)
	return nil
}

func replyFor(token, value string, err error) protocol.Reply {
	if err != nil {
		return protocol.Reply{Token: token, Error: err.Error()}
	}
	return protocol.Reply{Token: token, Success: true, Value: value}
}

func (h *Host) current() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil, ErrNoSession
	}
	return h.session, nil
}

func (h *Host) endSession(s *Session) {
	h.mu.Lock()
	if h.session == s {
		h.session = nil
	}
	h.mu.Unlock()
	_ = s.Close()
	h.logger.Info().Str("session", s.ID).Msg("host.session closed")
}

// ConfirmPairing confirms the pending pairing of the current session.
func (h *Host) ConfirmPairing() error {
	s, err := h.current()
	if err != nil {
		return err
	}
	p, ok := s.Messenger.(Pairer)
	if !ok {
		return ErrUnsupported
	}
	return p.ConfirmPairing()
}

// Drop simulates a lost connection on the current session.
func (h *Host) Drop(reason string) error {
	s, err := h.current()
	if err != nil {
		return err
	}
	d, ok := s.Messenger.(Dropper)
	if !ok {
		return ErrUnsupported
	}
	return d.Drop(reason)
}

// Session reports the current session, if any.
func (h *Host) Session() (SessionInfo, bool) {
	s, err := h.current()
	if err != nil {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Attached reports whether a channel is currently served.
func (h *Host) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transport != nil
}

// Close ends the session and the attached channel.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	s, t := h.session, h.transport
	h.session, h.transport = nil, nil
	h.mu.Unlock()

	h.cancel()
	var errs []error
	if s != nil {
		errs = append(errs, s.Close())
	}
	if t != nil {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

func (h *Host) emit(ev protocol.Event) {
	h.mu.Lock()
	t := h.transport
	h.mu.Unlock()
	if t == nil {
		h.logger.Debug().Str("event", ev.EventName()).Msg("host.event dropped: no channel")
		return
	}
	msg, err := protocol.EncodeEvent(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.EventName()).Msg("host.event encode failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := t.Send(ctx, msg); err != nil {
		h.logger.Warn().Err(err).Str("event", ev.EventName()).Msg("host.event send failed")
		return
	}
	observability.RecordChannelMessage("host", "out", ev.EventName())
}
