package correlator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 30 * time.Second

// SendFunc transmits one stamped command to the host.
type SendFunc func(ctx context.Context, cmd protocol.Command) error

type Config struct {
	Timeout time.Duration
	Clock   clockwork.Clock
}

// Correlator pairs outbound requests with their asynchronous replies.
type Correlator struct {
	send    SendFunc
	clock   clockwork.Clock
	timeout time.Duration
	logger  zerolog.Logger
	seq     atomic.Uint64

	mu      sync.Mutex
	pending table
	closed  bool
}

func New(send SendFunc, cfg Config) *Correlator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Correlator{
		send:    send,
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
		logger:  log.With().Str("component", "correlator").Logger(),
		pending: make(table),
	}
}

// NewToken returns a request token unique for the process lifetime.
func (c *Correlator) NewToken() string {
	return formatToken(c.clock.Now(), c.seq.Add(1))
}

// Issue stamps req with a fresh token, sends it and waits for the reply,
// the timeout, or ctx. The returned error is ErrTimeout, ErrShuttingDown,
// a *RemoteError, a send error, or ctx.Err().
func (c *Correlator) Issue(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	if req == nil {
		return protocol.Reply{}, ErrNilRequest
	}
	token := c.NewToken()
	stamped := req.WithToken(token)
	command := stamped.CommandName()

	now := c.clock.Now()
	e := &entry{
		PendingRequest: PendingRequest{
			Token:    token,
			Command:  command,
			IssuedAt: now,
			Deadline: now.Add(c.timeout),
		},
		done: make(chan settlement, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Reply{}, ErrShuttingDown
	}
	if !c.pending.add(e) {
		c.mu.Unlock()
		return protocol.Reply{}, ErrDuplicateToken
	}
	c.mu.Unlock()

	// Arm the timer before sending so a fast reply never races an unarmed deadline.
	timer := c.clock.NewTimer(c.timeout)
	defer timer.Stop()

	c.logger.Debug().Str("token", token).Str("command", command).Msg("correlator.issue")
	if err := c.send(ctx, stamped); err != nil {
		c.settle(token, settlement{err: err})
		s := <-e.done
		c.record(e, s.err)
		return s.reply, s.err
	}

	var s settlement
	select {
	case s = <-e.done:
	case <-timer.Chan():
		c.settle(token, settlement{err: ErrTimeout})
		s = <-e.done
	case <-ctx.Done():
		c.settle(token, settlement{err: ctx.Err()})
		s = <-e.done
	}
	c.record(e, s.err)
	return s.reply, s.err
}

// Resolve settles the request matching reply.Token. It reports false for
// unknown or already settled tokens, which are dropped.
func (c *Correlator) Resolve(reply protocol.Reply) bool {
	s := settlement{reply: reply}
	if !reply.Success {
		s.err = &RemoteError{Message: reply.Error}
	}
	return c.settle(reply.Token, s)
}

func (c *Correlator) settle(token string, s settlement) bool {
	c.mu.Lock()
	e, ok := c.pending.take(token)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Str("token", token).Msg("correlator.settle ignored")
		return false
	}
	var remote *RemoteError
	if errors.As(s.err, &remote) && remote.Command == "" {
		remote.Command = e.Command
	}
	e.done <- s
	return true
}

// Shutdown rejects every pending request with ErrShuttingDown and refuses new ones.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	drained := make([]*entry, 0, len(c.pending))
	for token, e := range c.pending {
		delete(c.pending, token)
		drained = append(drained, e)
	}
	c.mu.Unlock()

	for _, e := range drained {
		e.done <- settlement{err: ErrShuttingDown}
	}
	if len(drained) > 0 {
		c.logger.Info().Int("rejected", len(drained)).Msg("correlator.shutdown")
	}
}

// InFlight reports how many requests await settlement.
func (c *Correlator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Pending lists unsettled requests ordered by token.
func (c *Correlator) Pending() []PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.list()
}

// Has reports whether token is still pending.
func (c *Correlator) Has(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[token]
	return ok
}

// Lookup returns the pending request for token.
func (c *Correlator) Lookup(token string) (PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[token]
	if !ok {
		return PendingRequest{}, false
	}
	return e.PendingRequest, true
}

func (c *Correlator) record(e *entry, err error) {
	outcome := outcomeOf(err)
	observability.RecordRequest(e.Command, outcome, c.clock.Since(e.IssuedAt))
	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str("token", e.Token).Str("command", e.Command).Str("outcome", outcome).Msg("correlator.settled")
}

func outcomeOf(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrShuttingDown):
		return "shutdown"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "send_error"
	}
}
