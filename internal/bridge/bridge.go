package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/linkbridge/internal/bus"
	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/correlator"
	"github.com/danmuck/linkbridge/internal/intent"
	"github.com/danmuck/linkbridge/internal/lifecycle"
	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/danmuck/linkbridge/internal/reconnect"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Content is the body of an outbound message: text, a document, or both.
type Content struct {
	Text     string
	Document *protocol.Document
}

type Bridge struct {
	cfg       config.BridgeConfig
	transport channel.Transport
	clock     clockwork.Clock
	bus       *bus.Bus
	logger    zerolog.Logger

	corr *correlator.Correlator
	sup  *reconnect.Supervisor

	mu         sync.Mutex
	snap       lifecycle.Snapshot
	resolver   *intent.Resolver
	loggingOut int
	// closedDuringLogout marks a close whose reconnect a logout suppressed.
	closedDuringLogout bool
	restartTimer       clockwork.Timer
	restartGen         uint64
	initialDone        bool
	closed             bool
}

// New wires a bridge onto t. Call Run to start consuming host events.
func New(t channel.Transport, cfg config.BridgeConfig, opts ...Option) *Bridge {
	cfg = cfg.WithDefaults()
	b := &Bridge{
		cfg:       cfg,
		transport: t,
		clock:     clockwork.NewRealClock(),
		bus:       bus.New(),
		logger:    log.With().Str("component", "bridge").Logger(),
		snap:      lifecycle.Initial(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.corr = correlator.New(b.send, correlator.Config{Timeout: cfg.RequestTimeout, Clock: b.clock})
	b.sup = reconnect.NewSupervisor(cfg.Reconnect, b.clock, b.reconnectFired)
	b.resolver = intent.NewResolver(cfg.LinkMarker, b.clock)
	observability.SetConnectionState(string(b.snap.State), lifecycle.AllStates())
	return b
}

// Bus returns the notification topics. Watch channels drop values when
// their buffer is full; a consumer that must see every released intent
// subscribes to Intents with Subscribe.
func (b *Bridge) Bus() *bus.Bus { return b.bus }

func (b *Bridge) State() lifecycle.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// PendingIntent returns the intent waiting for Connected, if any.
func (b *Bridge) PendingIntent() (intent.Intent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolver.Pending()
}

// HasIntent reports whether any submitted link produced an intent.
func (b *Bridge) HasIntent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolver.Accepted()
}

// InFlight reports how many correlated requests await a reply.
func (b *Bridge) InFlight() int { return b.corr.InFlight() }

// ReconnectAttempt is the supervisor's current attempt counter.
func (b *Bridge) ReconnectAttempt() int { return b.sup.Attempt() }

// Run consumes host events until ctx ends or the transport closes, then
// shuts the bridge down.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Shutdown()
	b.logger.Info().Msg("bridge.run")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.transport.Done():
			if err := b.transport.Err(); err != nil {
				b.bus.Faults.Publish(bus.Fault{Kind: bus.FaultTransport, Err: err})
				return err
			}
			return channel.ErrClosed
		case msg := <-b.transport.Inbound():
			b.handle(msg)
		}
	}
}

// Start issues start-session. It also clears an exhausted reconnect budget,
// which only a manual start may do.
func (b *Bridge) Start(ctx context.Context) error {
	var fx effects
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.sup.Reset()
	b.stopRestartLocked()
	b.applyLocked(lifecycle.StartRequested{}, &fx)
	fx.start = true
	b.mu.Unlock()
	return b.run(ctx, fx)
}

// Submit hands an external link to the intent resolver. Links that do not
// parse are dropped. An accepted link starts the session when none runs.
func (b *Bridge) Submit(ctx context.Context, raw string, force bool) {
	var fx effects
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	out := b.resolver.Submit(raw, force, b.snap.State == lifecycle.Connected)
	if !out.Accepted() {
		b.mu.Unlock()
		return
	}
	if out.Action == intent.ActionReleased {
		fx.released = append(fx.released, out.Intent)
	}
	if !b.snap.State.Running() {
		b.stopRestartLocked()
		b.applyLocked(lifecycle.StartRequested{}, &fx)
		fx.start = true
	}
	b.mu.Unlock()
	if err := b.run(ctx, fx); err != nil {
		b.logger.Warn().Err(err).Msg("bridge.submit start failed")
	}
}

// SubmitInitial processes the launch link at most once per bridge.
func (b *Bridge) SubmitInitial(ctx context.Context, raw string) {
	b.mu.Lock()
	if b.initialDone {
		b.mu.Unlock()
		return
	}
	b.initialDone = true
	b.mu.Unlock()
	if raw == "" {
		return
	}
	b.Submit(ctx, raw, false)
}

func (b *Bridge) SendMessage(ctx context.Context, target string, content Content) error {
	if err := b.requireStarted(); err != nil {
		return err
	}
	_, err := b.corr.Issue(ctx, protocol.SendMessage{
		Target:   target,
		Text:     content.Text,
		Document: content.Document,
	})
	return err
}

// Logout asks the host to end the session. While it is in flight no
// reconnect is scheduled. The LoggedOut transition itself is driven by the
// logout-complete event. If the logout fails after an unexpected close, the
// close is handed back to the supervisor.
func (b *Bridge) Logout(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.snap.State == lifecycle.Idle {
		b.mu.Unlock()
		return ErrTransportNotStarted
	}
	b.loggingOut++
	b.sup.Cancel()
	b.mu.Unlock()

	_, err := b.corr.Issue(ctx, protocol.Logout{})

	var fx effects
	b.mu.Lock()
	b.loggingOut--
	if b.loggingOut == 0 {
		rearm := err != nil && b.closedDuringLogout && b.snap.State == lifecycle.Initializing
		b.closedDuringLogout = false
		if rearm && !b.suppressedLocked() {
			b.logger.Info().Err(err).Msg("bridge.logout failed after close")
			b.notifyCloseLocked(&fx)
		}
	}
	b.mu.Unlock()
	_ = b.run(context.Background(), fx)
	return err
}

func (b *Bridge) GetIdentity(ctx context.Context) (string, error) {
	if err := b.requireStarted(); err != nil {
		return "", err
	}
	reply, err := b.corr.Issue(ctx, protocol.GetIdentity{})
	if err != nil {
		return "", err
	}
	if reply.Value == "" {
		return "", &correlator.RemoteError{Command: protocol.CommandGetIdentity, Message: "identity missing value"}
	}
	return reply.Value, nil
}

// Shutdown stops timers and rejects pending requests with
// correlator.ErrShuttingDown. It is safe to call more than once.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.stopRestartLocked()
	b.mu.Unlock()

	b.sup.Cancel()
	b.corr.Shutdown()
	b.logger.Info().Msg("bridge.shutdown")
}

func (b *Bridge) requireStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.snap.State == lifecycle.Idle {
		return ErrTransportNotStarted
	}
	return nil
}

func (b *Bridge) send(ctx context.Context, cmd protocol.Command) error {
	msg, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := b.transport.Send(ctx, msg); err != nil {
		return err
	}
	observability.RecordChannelMessage("bridge", "out", msg.Name)
	return nil
}

// handle applies one inbound message. Only the Run goroutine calls it.
func (b *Bridge) handle(msg channel.Message) {
	observability.RecordChannelMessage("bridge", "in", msg.Name)
	ev, err := protocol.DecodeEvent(msg)
	if err != nil {
		b.logger.Warn().Err(err).Str("name", msg.Name).Msg("bridge.event rejected")
		b.bus.Faults.Publish(bus.Fault{Kind: bus.FaultSession, Err: &protocol.SessionError{Message: err.Error()}})
		return
	}

	var (
		fx     effects
		settle *protocol.Reply
	)
	switch e := ev.(type) {
	case protocol.ServerReady:
		b.apply(lifecycle.HostReady{Port: e.Port}, &fx)
		fx.ready = &bus.HostReady{Port: e.Port}
	case protocol.PairingToken:
		b.apply(lifecycle.PairingIssued{Token: e.Code}, &fx)
	case protocol.ConnectionStatus:
		if e.Status == protocol.StatusOpen {
			b.apply(lifecycle.Opened{}, &fx)
		} else {
			b.apply(lifecycle.Closed{Reason: e.Reason, LoggedOut: e.LoggedOut()}, &fx)
		}
	case protocol.LogoutComplete:
		// Only a reply to our own pending logout ends the session.
		if !b.awaiting(e.Token, protocol.CommandLogout) {
			b.logger.Debug().Str("token", e.Token).Msg("bridge.logout-complete dropped")
			break
		}
		if e.Success {
			b.apply(lifecycle.LogoutCompleted{}, &fx)
		}
		r := e.Result()
		settle = &r
	case protocol.MessageSent:
		if b.awaiting(e.Token, protocol.CommandSendMessage) {
			r := e.Result()
			settle = &r
		}
	case protocol.Identity:
		if b.awaiting(e.Token, protocol.CommandGetIdentity) {
			r := e.Result()
			settle = &r
		}
	case protocol.SessionFailure:
		b.logger.Error().Str("message", e.Message).Msg("bridge.session error")
		fx.faults = append(fx.faults, bus.Fault{Kind: bus.FaultSession, Err: &protocol.SessionError{Message: e.Message}})
	}
	if err := b.run(context.Background(), fx); err != nil {
		b.logger.Warn().Err(err).Msg("bridge.effects failed")
	}
	// Settle last so a caller returning from Logout already sees LoggedOut.
	if settle != nil {
		b.resolve(*settle)
	}
}

// awaiting reports whether token belongs to a pending request of command.
// Replies of the wrong kind are dropped.
func (b *Bridge) awaiting(token, command string) bool {
	p, ok := b.corr.Lookup(token)
	if !ok || p.Command != command {
		b.logger.Debug().Str("token", token).Str("command", command).Msg("bridge.reply mismatched")
		return false
	}
	return true
}

func (b *Bridge) resolve(reply protocol.Reply) bool {
	if b.corr.Resolve(reply) {
		return true
	}
	b.logger.Debug().Str("token", reply.Token).Msg("bridge.reply dropped")
	return false
}

func (b *Bridge) apply(ev lifecycle.Event, fx *effects) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyLocked(ev, fx)
}

// applyLocked reduces ev into the snapshot and decides the follow-up work.
func (b *Bridge) applyLocked(ev lifecycle.Event, fx *effects) {
	next, tr := lifecycle.Reduce(b.snap, ev)
	b.snap = next
	if tr.Ignored {
		b.logger.Debug().Str("state", string(tr.From)).Msgf("bridge.event ignored %T", ev)
		return
	}
	if tr.Changed() {
		observability.SetConnectionState(string(tr.To), lifecycle.AllStates())
		b.logger.Info().Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("bridge.state")
		fx.states = append(fx.states, bus.StateChange{From: tr.From, To: tr.To, Snapshot: next})
	}
	if tr.EnteredConnected() {
		b.sup.Reset()
		if in, ok := b.resolver.OnConnected(); ok {
			fx.released = append(fx.released, in)
		}
	}
	if tr.Reconnect {
		b.notifyCloseLocked(fx)
	}
	if tr.EnteredLoggedOut() {
		b.sup.Reset()
	}
	if tr.ClearIntent {
		b.resolver.Clear()
		b.scheduleRestartLocked()
	}
}

func (b *Bridge) notifyCloseLocked(fx *effects) {
	suppressed := b.suppressedLocked()
	if suppressed && b.loggingOut > 0 && !b.closed {
		b.closedDuringLogout = true
	}
	if _, err := b.sup.NotifyClose(suppressed); err != nil {
		fx.faults = append(fx.faults, bus.Fault{Kind: bus.FaultMaxReconnects, Err: err})
	}
}

func (b *Bridge) suppressedLocked() bool {
	return b.closed || b.loggingOut > 0 || b.snap.State == lifecycle.LoggedOut
}

// reconnectFired runs on the supervisor's timer goroutine.
func (b *Bridge) reconnectFired(attempt int) {
	var fx effects
	b.mu.Lock()
	if b.suppressedLocked() || b.snap.State != lifecycle.Initializing {
		b.mu.Unlock()
		b.logger.Debug().Int("attempt", attempt).Msg("bridge.reconnect skipped")
		return
	}
	fx.start = true
	b.mu.Unlock()
	if err := b.run(context.Background(), fx); err != nil {
		b.logger.Warn().Err(err).Int("attempt", attempt).Msg("bridge.reconnect start failed")
	}
}

func (b *Bridge) scheduleRestartLocked() {
	b.stopRestartLocked()
	if b.closed || b.cfg.RestartAfterLogout <= 0 {
		return
	}
	b.restartGen++
	gen := b.restartGen
	b.restartTimer = b.clock.AfterFunc(b.cfg.RestartAfterLogout, func() { b.restartAfterLogout(gen) })
}

func (b *Bridge) stopRestartLocked() {
	if b.restartTimer != nil {
		b.restartTimer.Stop()
		b.restartTimer = nil
	}
	b.restartGen++
}

func (b *Bridge) restartAfterLogout(gen uint64) {
	var fx effects
	b.mu.Lock()
	if gen != b.restartGen || b.closed || b.snap.State != lifecycle.LoggedOut {
		b.mu.Unlock()
		return
	}
	b.restartTimer = nil
	b.applyLocked(lifecycle.StartRequested{}, &fx)
	fx.start = true
	b.mu.Unlock()
	b.logger.Info().Msg("bridge.restart after logout")
	if err := b.run(context.Background(), fx); err != nil {
		b.logger.Warn().Err(err).Msg("bridge.restart start failed")
	}
}

// effects is the work decided under the lock and run after it is released.
type effects struct {
	start    bool
	states   []bus.StateChange
	released []intent.Intent
	faults   []bus.Fault
	ready    *bus.HostReady
}

func (b *Bridge) run(ctx context.Context, fx effects) error {
	var err error
	if fx.start {
		if err = b.send(ctx, protocol.StartSession{}); err != nil {
			b.logger.Error().Err(err).Msg("bridge.start-session send failed")
			if !errors.Is(err, context.Canceled) {
				fx.faults = append(fx.faults, bus.Fault{Kind: bus.FaultTransport, Err: err})
			}
		} else {
			b.logger.Info().Msg("bridge.start-session")
		}
	}
	for _, sc := range fx.states {
		b.bus.States.Publish(sc)
	}
	for _, in := range fx.released {
		b.bus.Intents.Publish(in)
	}
	for _, f := range fx.faults {
		b.bus.Faults.Publish(f)
	}
	if fx.ready != nil {
		b.bus.Ready.Publish(*fx.ready)
	}
	return err
}
