package bridge

import (
	"github.com/danmuck/linkbridge/internal/bus"
	"github.com/jonboulle/clockwork"
)

type Option func(*Bridge)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Bridge) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithBus publishes notifications on an existing bus.
func WithBus(nb *bus.Bus) Option {
	return func(b *Bridge) {
		if nb != nil {
			b.bus = nb
		}
	}
}
