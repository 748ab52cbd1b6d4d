package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-zeromq/zmq4"

	"github.com/rjboer/GoSRT/internal/logging"
)

// DialOptions tunes how a ZMQ subscriber connects.
type DialOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration // zero retries until ctx is done
	Logger          logging.Logger
}

func (o DialOptions) withDefaults() DialOptions {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 250 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

// ZMQSubscriber is a ZeroMQ SUB socket subscribed to every topic.
//
// The publisher is dialed lazily by Receive, so construction never blocks.
// When a receive fails the socket is discarded and the next Receive dials a
// fresh one, which carries the subscriber across publisher restarts.
type ZMQSubscriber struct {
	endpoint Endpoint
	opts     DialOptions
	log      logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	mu   sync.Mutex
	sock zmq4.Socket // nil until dialed
}

// NewZMQSubscriber prepares a subscriber for ep without connecting. ctx
// bounds its lifetime; Close releases it earlier.
func NewZMQSubscriber(ctx context.Context, ep Endpoint, opts DialOptions) (*ZMQSubscriber, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	subCtx, cancel := context.WithCancel(ctx)
	return &ZMQSubscriber{
		endpoint: ep,
		opts:     opts,
		log:      opts.Logger.With(logging.F("endpoint", ep.Address())),
		ctx:      subCtx,
		cancel:   cancel,
	}, nil
}

// socket returns the connected socket, dialing one if needed.
func (s *ZMQSubscriber) socket(ctx context.Context) (zmq4.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if s.sock != nil {
		return s.sock, nil
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialInterval
	policy.MaxInterval = s.opts.MaxInterval
	policy.MaxElapsedTime = s.opts.MaxElapsed

	var sock zmq4.Socket
	dial := func() error {
		// Backoff owns the retry schedule, so zmq4 gets a single attempt.
		sock = zmq4.NewSub(s.ctx, zmq4.WithDialerMaxRetries(0))
		if err := sock.Dial(s.endpoint.Address()); err != nil {
			_ = sock.Close()
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("publisher dial failed", logging.Err(err), logging.F("retry_in", wait))
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(policy, dialCtx), notify); err != nil {
		switch {
		case s.ctx.Err() != nil:
			return nil, ErrClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dial %s: %w", s.endpoint.Address(), err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.endpoint.Address(), err)
	}
	s.sock = sock
	s.log.Info("subscribed to publisher")
	return sock, nil
}

// drop discards sock so the next Receive redials.
func (s *ZMQSubscriber) drop(sock zmq4.Socket) {
	s.mu.Lock()
	if s.sock == sock {
		s.sock = nil
	}
	s.mu.Unlock()
	_ = sock.Close()
}

// Receive returns the next message with all frames concatenated, dialing
// the publisher first if no connection is up.
func (s *ZMQSubscriber) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sock, err := s.socket(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := sock.Recv()
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, ErrClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.drop(sock)
		s.log.Warn("publisher connection lost, will redial", logging.Err(err))
		return nil, fmt.Errorf("receive from %s: %w", s.endpoint.Address(), err)
	}
	return msg.Bytes(), nil
}

// Close tears down the socket and unblocks any pending Receive.
func (s *ZMQSubscriber) Close() error {
	s.cancel()
	s.mu.Lock()
	sock := s.sock
	s.sock = nil
	s.mu.Unlock()
	if sock == nil {
		return nil
	}
	if err := sock.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
