package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/rjboer/GoSRT/internal/logging"
)

func TestEndpointAddress(t *testing.T) {
	ep := Endpoint{Host: "localhost", Port: 5560}
	if got := ep.Address(); got != "tcp://localhost:5560" {
		t.Fatalf("unexpected address %q", got)
	}
	v6 := Endpoint{Host: "::1", Port: 5555}
	if got := v6.Address(); got != "tcp://[::1]:5555" {
		t.Fatalf("unexpected v6 address %q", got)
	}
}

func TestEndpointValidate(t *testing.T) {
	cases := []struct {
		ep      Endpoint
		wantErr bool
	}{
		{Endpoint{Host: "srt.local", Port: 5555}, false},
		{Endpoint{Host: "", Port: 5555}, true},
		{Endpoint{Host: "srt.local", Port: 0}, true},
		{Endpoint{Host: "srt.local", Port: 70000}, true},
	}
	for _, tc := range cases {
		if err := tc.ep.Validate(); (err != nil) != tc.wantErr {
			t.Fatalf("%+v: wantErr=%v got %v", tc.ep, tc.wantErr, err)
		}
	}
}

func TestChanSubscriberDeliversInOrder(t *testing.T) {
	sub := NewChanSubscriber(4)
	ctx := context.Background()
	for _, p := range []string{"a", "b", "c"} {
		if err := sub.Publish(ctx, []byte(p)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := sub.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expected %q got %q", want, got)
		}
	}
}

func TestChanSubscriberReceiveHonoursContext(t *testing.T) {
	sub := NewChanSubscriber(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChanSubscriberClose(t *testing.T) {
	sub := NewChanSubscriber(1)
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := sub.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := sub.Publish(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on publish, got %v", err)
	}
}

func TestNewZMQSubscriberRejectsInvalidEndpoint(t *testing.T) {
	if _, err := NewZMQSubscriber(context.Background(), Endpoint{Port: 5560}, DialOptions{}); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func fastDial() DialOptions {
	return DialOptions{
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		Logger:          logging.Nop(),
	}
}

func listenPub(t *testing.T, ctx context.Context, addr string) zmq4.Socket {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		pub := zmq4.NewPub(ctx)
		err := pub.Listen(addr)
		if err == nil {
			return pub
		}
		_ = pub.Close()
		if time.Now().After(deadline) {
			t.Fatalf("listen %s: %v", addr, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// publishEvery sends payload on pub until the returned stop func is called.
func publishEvery(pub zmq4.Socket, payload string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = pub.Send(zmq4.NewMsgString(payload))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// receiveUntil reads from sub until want arrives, skipping other payloads and
// receive errors. The subscriber is closed if nothing matches in time.
func receiveUntil(t *testing.T, sub *ZMQSubscriber, want string, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	got := make(chan struct{})
	go func() {
		defer close(got)
		for ctx.Err() == nil {
			msg, err := sub.Receive(ctx)
			if err == nil && string(msg) == want {
				return
			}
			if errors.Is(err, ErrClosed) {
				return
			}
		}
	}()
	select {
	case <-got:
		if ctx.Err() != nil {
			t.Fatalf("no %q within %v", want, timeout)
		}
	case <-time.After(timeout + time.Second):
		_ = sub.Close()
		t.Fatalf("no %q within %v", want, timeout)
	}
}

func TestZMQSubscriberSurvivesPublisherRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := listenPub(t, ctx, "tcp://127.0.0.1:0")
	port := pub.Addr().(*net.TCPAddr).Port

	sub, err := NewZMQSubscriber(ctx, Endpoint{Host: "127.0.0.1", Port: port}, fastDial())
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer sub.Close()

	stop := publishEvery(pub, "one")
	receiveUntil(t, sub, "one", 5*time.Second)
	stop()
	_ = pub.Close()

	restarted := listenPub(t, ctx, Endpoint{Host: "127.0.0.1", Port: port}.Address())
	defer restarted.Close()
	stop = publishEvery(restarted, "two")
	defer stop()
	receiveUntil(t, sub, "two", 5*time.Second)
}

func TestNewZMQSubscriberDoesNotBlockOnMissingPublisher(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	start := time.Now()
	sub, err := NewZMQSubscriber(context.Background(), Endpoint{Host: "127.0.0.1", Port: port}, fastDial())
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer sub.Close()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("construction took %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := sub.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while publisher is down, got %v", err)
	}
}

func TestZMQSubscriberCloseStopsDialing(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	sub, err := NewZMQSubscriber(context.Background(), Endpoint{Host: "127.0.0.1", Port: port}, fastDial())
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := sub.Receive(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}
	if _, err := sub.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
