// Package bus carries typed notifications from the bridge to its observers.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic fans one value type out to subscribers. Handlers run synchronously
// on the publishing goroutine, in subscription order.
type Topic[T any] struct {
	name string

	mu       sync.RWMutex
	nextID   uint64
	handlers []handler[T]
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

func (t *Topic[T]) Name() string { return t.name }

// Subscribe registers fn and returns a func that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, handler[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, h := range t.handlers {
				if h.id == id {
					t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch subscribes a buffered channel. Values are dropped for a watcher
// whose buffer is full. The returned func unsubscribes; the channel is
// never closed.
func (t *Topic[T]) Watch(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan T, buffer)
	stop := t.Subscribe(func(v T) {
		select {
		case ch <- v:
		default:
			log.Warn().Str("topic", t.name).Msg("bus.watch dropped value")
		}
	})
	return ch, stop
}

func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := make([]handler[T], len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
