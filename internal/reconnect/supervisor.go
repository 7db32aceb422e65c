package reconnect

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrMaxReconnectsExceeded = errors.New("reconnect: max reconnect attempts exceeded")

type Outcome string

const (
	Scheduled  Outcome = "scheduled"
	Suppressed Outcome = "suppressed"
	Exhausted  Outcome = "exhausted"
)

// Decision describes how the supervisor reacted to one unexpected close.
type Decision struct {
	Outcome Outcome
	Attempt int
	Delay   time.Duration
}

// Supervisor schedules restarts after unexpected disconnects. It owns at
// most one timer; a new schedule always stops the previous one.
type Supervisor struct {
	policy  Policy
	clock   clockwork.Clock
	restart func(attempt int)
	rng     *rand.Rand
	logger  zerolog.Logger

	mu        sync.Mutex
	attempt   int
	exhausted bool
	timer     clockwork.Timer
	gen       uint64
}

// NewSupervisor builds a supervisor that calls restart from the timer
// goroutine when a scheduled delay elapses.
func NewSupervisor(policy Policy, clock clockwork.Clock, restart func(attempt int)) *Supervisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Supervisor{
		policy:  policy.WithDefaults(),
		clock:   clock,
		restart: restart,
		logger:  log.With().Str("component", "reconnect").Logger(),
	}
	if s.policy.Jitter {
		s.rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return s
}

// NotifyClose records an unexpected close. When suppressed is true (logged
// out, or a logout is in flight) nothing is scheduled and the counter is
// left alone. ErrMaxReconnectsExceeded is returned once, on the close that
// exceeds the attempt budget.
func (s *Supervisor) NotifyClose(suppressed bool) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if suppressed {
		s.stopLocked()
		observability.RecordReconnect(string(Suppressed))
		s.logger.Info().Int("attempt", s.attempt).Msg("reconnect.suppressed")
		return Decision{Outcome: Suppressed, Attempt: s.attempt}, nil
	}
	if s.exhausted {
		return Decision{Outcome: Exhausted, Attempt: s.attempt}, nil
	}

	s.attempt++
	if s.attempt > s.policy.MaxAttempts {
		s.exhausted = true
		s.stopLocked()
		observability.RecordReconnect(string(Exhausted))
		s.logger.Error().Int("attempt", s.attempt).Int("max", s.policy.MaxAttempts).Msg("reconnect.exhausted")
		return Decision{Outcome: Exhausted, Attempt: s.attempt}, ErrMaxReconnectsExceeded
	}

	delay := NextBackoffDelay(s.policy, s.attempt, s.rng)
	s.stopLocked()
	s.gen++
	gen, attempt := s.gen, s.attempt
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen, attempt) })

	observability.RecordReconnect(string(Scheduled))
	s.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect.scheduled")
	return Decision{Outcome: Scheduled, Attempt: attempt, Delay: delay}, nil
}

func (s *Supervisor) fire(gen uint64, attempt int) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	observability.RecordReconnect("fired")
	s.logger.Info().Int("attempt", attempt).Msg("reconnect.fire")
	if s.restart != nil {
		s.restart(attempt)
	}
}

// Reset clears the counter and any exhausted state and cancels the pending
// timer. Called on Connected and on a manual start.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = 0
	s.exhausted = false
	s.stopLocked()
}

// Cancel stops the pending timer without touching the counter.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked() {
		observability.RecordReconnect("canceled")
	}
}

func (s *Supervisor) stopLocked() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	return true
}

func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Pending reports whether a restart is scheduled.
func (s *Supervisor) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Supervisor) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}
