package channel

import (
	"context"
	"sync"
)

const defaultPipeBuffer = 64

type pipe struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// PipeEnd is one side of an in-memory channel. Both ends share one lifetime.
type PipeEnd struct {
	p   *pipe
	in  chan Message
	out chan Message
}

var _ Transport = (*PipeEnd)(nil)

// NewPipe returns two connected ends; buffer <= 0 selects a default depth.
func NewPipe(buffer int) (*PipeEnd, *PipeEnd) {
	if buffer <= 0 {
		buffer = defaultPipeBuffer
	}
	p := &pipe{done: make(chan struct{})}
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	return &PipeEnd{p: p, in: ba, out: ab}, &PipeEnd{p: p, in: ab, out: ba}
}

func (e *PipeEnd) Send(ctx context.Context, msg Message) error {
	if msg.Name == "" {
		return ErrEmptyName
	}
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}
	select {
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case e.out <- msg:
		return nil
	}
}

func (e *PipeEnd) Inbound() <-chan Message { return e.in }

func (e *PipeEnd) Done() <-chan struct{} { return e.p.done }

func (e *PipeEnd) Err() error { return nil }

// Close shuts both ends; queued messages are discarded by readers that watch Done.
func (e *PipeEnd) Close() error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.p.closed {
		return nil
	}
	e.p.closed = true
	close(e.p.done)
	return nil
}
