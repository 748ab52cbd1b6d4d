package transport

import (
	"context"
	"sync"
)

// ChanSubscriber is an in-process Subscriber fed through Publish.
type ChanSubscriber struct {
	ch     chan []byte
	done   chan struct{}
	closer sync.Once
}

// NewChanSubscriber creates a subscriber with the given queue depth.
func NewChanSubscriber(buffer int) *ChanSubscriber {
	if buffer < 0 {
		buffer = 0
	}
	return &ChanSubscriber{
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Publish queues a message, blocking while the queue is full.
func (c *ChanSubscriber) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next published message.
func (c *ChanSubscriber) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.ch:
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops delivery; it is safe to call more than once.
func (c *ChanSubscriber) Close() error {
	c.closer.Do(func() { close(c.done) })
	return nil
}
