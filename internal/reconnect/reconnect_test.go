package reconnect

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/linkbridge/internal/testutil/testlog"
	"github.com/jonboulle/clockwork"
)

func TestNextBackoffDelaySequence(t *testing.T) {
	testlog.Start(t)
	p := Policy{InitialDelay: 2000 * time.Millisecond, Multiplier: 2, MaxDelay: 30000 * time.Millisecond}
	want := []time.Duration{2000, 4000, 8000, 16000, 30000, 30000}
	for i, w := range want {
		if got := NextBackoffDelay(p, i+1, nil); got != w*time.Millisecond {
			t.Fatalf("attempt %d got=%v want=%v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestNextBackoffDelayCapsFirstAttempt(t *testing.T) {
	testlog.Start(t)
	p := Policy{InitialDelay: time.Minute, Multiplier: 2, MaxDelay: 30 * time.Second}
	if got := NextBackoffDelay(p, 1, nil); got != 30*time.Second {
		t.Fatalf("got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	p := DefaultPolicy()
	p.Jitter = true
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(p, 1, rng)
	if got < time.Second || got > 3*time.Second {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestNextBackoffDelayJitterStaysUnderCap(t *testing.T) {
	testlog.Start(t)
	p := Policy{InitialDelay: 30 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(11))
	for attempt := 1; attempt <= 50; attempt++ {
		if got := NextBackoffDelay(p, attempt, rng); got > p.MaxDelay || got < p.MaxDelay/2 {
			t.Fatalf("attempt %d delay %v outside [%v, %v]", attempt, got, p.MaxDelay/2, p.MaxDelay)
		}
	}
}

func TestSupervisorSchedulesWithBackoffAndExhausts(t *testing.T) {
	testlog.Start(t)
	fc := clockwork.NewFakeClock()
	s := NewSupervisor(Policy{InitialDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second, MaxAttempts: 3}, fc, nil)

	for i, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		d, err := s.NotifyClose(false)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if d.Outcome != Scheduled || d.Attempt != i+1 || d.Delay != want {
			t.Fatalf("attempt %d decision %+v", i+1, d)
		}
	}
	d, err := s.NotifyClose(false)
	if !errors.Is(err, ErrMaxReconnectsExceeded) || d.Outcome != Exhausted {
		t.Fatalf("expected exhaustion, got %+v err=%v", d, err)
	}
	if s.Pending() {
		t.Fatalf("exhausted supervisor must not hold a timer")
	}
	d, err = s.NotifyClose(false)
	if err != nil || d.Outcome != Exhausted {
		t.Fatalf("exhaustion is reported once, got %+v err=%v", d, err)
	}

	s.Reset()
	if s.Exhausted() || s.Attempt() != 0 {
		t.Fatalf("reset should clear exhaustion")
	}
}

func TestSupervisorKeepsSingleTimer(t *testing.T) {
	testlog.Start(t)
	fc := clockwork.NewFakeClock()
	fired := make(chan int, 4)
	s := NewSupervisor(DefaultPolicy(), fc, func(attempt int) { fired <- attempt })

	if _, err := s.NotifyClose(false); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := s.NotifyClose(false); err != nil {
		t.Fatalf("second close: %v", err)
	}

	fc.Advance(2 * time.Second)
	select {
	case a := <-fired:
		t.Fatalf("replaced timer fired attempt=%d", a)
	case <-time.After(30 * time.Millisecond):
	}

	fc.Advance(2 * time.Second)
	select {
	case a := <-fired:
		if a != 2 {
			t.Fatalf("expected attempt 2, got %d", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("restart never fired")
	}
	select {
	case a := <-fired:
		t.Fatalf("unexpected extra fire attempt=%d", a)
	case <-time.After(30 * time.Millisecond):
	}
	if s.Pending() {
		t.Fatalf("timer should be cleared after firing")
	}
}

func TestSupervisorSuppressedWhileLoggedOut(t *testing.T) {
	testlog.Start(t)
	fc := clockwork.NewFakeClock()
	fired := make(chan int, 1)
	s := NewSupervisor(DefaultPolicy(), fc, func(attempt int) { fired <- attempt })

	if _, err := s.NotifyClose(false); err != nil {
		t.Fatalf("close: %v", err)
	}
	d, _ := s.NotifyClose(true)
	if d.Outcome != Suppressed || s.Pending() {
		t.Fatalf("suppression should cancel pending restart, got %+v", d)
	}
	fc.Advance(time.Minute)
	select {
	case a := <-fired:
		t.Fatalf("suppressed supervisor fired attempt=%d", a)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSupervisorResetOnConnected(t *testing.T) {
	testlog.Start(t)
	fc := clockwork.NewFakeClock()
	s := NewSupervisor(DefaultPolicy(), fc, nil)
	_, _ = s.NotifyClose(false)
	_, _ = s.NotifyClose(false)
	if s.Attempt() != 2 {
		t.Fatalf("attempt got=%d", s.Attempt())
	}
	s.Reset()
	if s.Attempt() != 0 || s.Pending() {
		t.Fatalf("reset should clear attempt and timer")
	}
	d, _ := s.NotifyClose(false)
	if d.Attempt != 1 || d.Delay != 2*time.Second {
		t.Fatalf("cycle should restart from base, got %+v", d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("expected one scheduled timer: %v", err)
	}
	s.Cancel()
	if s.Pending() || s.Attempt() != 1 {
		t.Fatalf("cancel stops the timer but keeps the counter")
	}
}
