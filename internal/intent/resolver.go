package intent

import (
	"time"

	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Intent is a parsed target waiting for (or released on) a connected session.
type Intent struct {
	Raw      string    `json:"raw"`
	Target   string    `json:"target"`
	QueuedAt time.Time `json:"queuedAt"`
}

type Action string

const (
	ActionIgnored   Action = "ignored"
	ActionDuplicate Action = "duplicate"
	ActionQueued    Action = "queued"
	ActionReplaced  Action = "replaced"
	ActionReleased  Action = "released"
	ActionCleared   Action = "cleared"
)

// Outcome reports what Submit did. Intent is set for every action except
// ActionIgnored and ActionDuplicate.
type Outcome struct {
	Action Action
	Intent Intent
}

// Accepted reports whether the link produced a new intent.
func (o Outcome) Accepted() bool {
	return o.Action == ActionQueued || o.Action == ActionReplaced || o.Action == ActionReleased
}

// Resolver holds the single pending intent. It is not safe for concurrent
// use; the owner serializes calls.
type Resolver struct {
	marker   string
	clock    clockwork.Clock
	logger   zerolog.Logger
	pending  *Intent
	accepted bool
}

func NewResolver(marker string, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		marker: marker,
		clock:  clock,
		logger: log.With().Str("component", "intent").Logger(),
	}
}

// Submit parses raw. When connected the intent is released at once;
// otherwise it replaces any pending one. Resubmitting the pending raw link
// is a no-op unless force is set.
func (r *Resolver) Submit(raw string, force, connected bool) Outcome {
	target, err := Parse(raw, r.marker)
	if err != nil {
		r.logger.Debug().Err(err).Msg("intent.ignored")
		return r.outcome(Outcome{Action: ActionIgnored})
	}
	if !force && r.pending != nil && r.pending.Raw == raw {
		r.logger.Debug().Str("target", target).Msg("intent.duplicate")
		return r.outcome(Outcome{Action: ActionDuplicate})
	}

	r.accepted = true
	in := Intent{Raw: raw, Target: target, QueuedAt: r.clock.Now()}
	if connected {
		r.pending = nil
		r.logger.Info().Str("target", target).Msg("intent.released")
		return r.outcome(Outcome{Action: ActionReleased, Intent: in})
	}

	action := ActionQueued
	if r.pending != nil {
		action = ActionReplaced
	}
	r.pending = &in
	r.logger.Info().Str("target", target).Str("action", string(action)).Msg("intent.pending")
	return r.outcome(Outcome{Action: action, Intent: in})
}

// OnConnected releases and clears the pending intent, if any.
func (r *Resolver) OnConnected() (Intent, bool) {
	if r.pending == nil {
		return Intent{}, false
	}
	in := *r.pending
	r.pending = nil
	r.outcome(Outcome{Action: ActionReleased, Intent: in})
	r.logger.Info().Str("target", in.Target).Msg("intent.released")
	return in, true
}

// Clear drops the pending intent without releasing it.
func (r *Resolver) Clear() (Intent, bool) {
	if r.pending == nil {
		return Intent{}, false
	}
	in := *r.pending
	r.pending = nil
	r.outcome(Outcome{Action: ActionCleared, Intent: in})
	return in, true
}

func (r *Resolver) Pending() (Intent, bool) {
	if r.pending == nil {
		return Intent{}, false
	}
	return *r.pending, true
}

// Accepted reports whether any link has ever produced an intent.
func (r *Resolver) Accepted() bool { return r.accepted }

func (r *Resolver) outcome(o Outcome) Outcome {
	observability.RecordIntent(string(o.Action))
	return o
}
