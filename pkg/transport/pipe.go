package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/types"
)

// defaultPipeBuffer bounds how many undelivered messages an end may hold.
const defaultPipeBuffer = 64

// PipeEnd is one end of an in-process channel created by NewPipe.
type PipeEnd struct {
	origin string
	peer   *PipeEnd

	inbox chan Message
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPipe connects two in-process contexts with the given origins.
func NewPipe(originA, originB string) (*PipeEnd, *PipeEnd, error) {
	a, err := newPipeEnd(originA)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid origin for first end: %w", err)
	}
	b, err := newPipeEnd(originB)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid origin for second end: %w", err)
	}
	a.peer = b
	b.peer = a
	return a, b, nil
}

func newPipeEnd(raw string) (*PipeEnd, error) {
	o, err := origin.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return &PipeEnd{
		origin: o,
		inbox:  make(chan Message, defaultPipeBuffer),
		done:   make(chan struct{}),
	}, nil
}

// Origin implements Endpoint.
func (p *PipeEnd) Origin() string {
	return p.origin
}

// Post implements Endpoint.
func (p *PipeEnd) Post(ctx context.Context, env *types.Envelope, targetOrigin string) error {
	if p.isClosed() {
		return ErrClosed
	}

	addressed, err := resolveTarget(targetOrigin, p.peer.origin)
	if err != nil {
		return err
	}
	if !addressed {
		return nil
	}

	return p.peer.deliver(ctx, Message{Origin: p.origin, Envelope: env})
}

// Inject places a message in this end's inbox as if it had arrived from
// some other context sharing the channel. The origin is taken as given.
func (p *PipeEnd) Inject(ctx context.Context, msg Message) error {
	return p.deliver(ctx, msg)
}

func (p *PipeEnd) deliver(ctx context.Context, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages implements Endpoint.
func (p *PipeEnd) Messages() <-chan Message {
	return p.inbox
}

// Close implements Endpoint. It closes only this end; the peer keeps
// running but its posts fail with ErrClosed.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		// Wake senders blocked in deliver before taking the write lock.
		close(p.done)

		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
	return nil
}

func (p *PipeEnd) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
