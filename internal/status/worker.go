// Package status ingests instrument status documents and keeps the latest
// one available to readers.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rjboer/GoSRT/internal/decoder"
	"github.com/rjboer/GoSRT/internal/logging"
	"github.com/rjboer/GoSRT/internal/metrics"
	"github.com/rjboer/GoSRT/internal/transport"
)

// Options configures a Worker.
type Options struct {
	Logger     logging.Logger
	Recorder   metrics.Recorder
	Now        func() time.Time
	RetryDelay time.Duration
}

// Worker owns the status subscription.
type Worker struct {
	sub        transport.Subscriber
	logger     logging.Logger
	recorder   metrics.Recorder
	now        func() time.Time
	retryDelay time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
	updated  time.Time
}

// NewWorker builds a status worker reading from sub. Call Start to begin
// receiving.
func NewWorker(sub transport.Subscriber, opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Worker{
		sub:        sub,
		logger:     opts.Logger.With(logging.F("worker", metrics.FeedStatus)),
		recorder:   opts.Recorder,
		now:        opts.Now,
		retryDelay: opts.RetryDelay,
	}
}

// Start launches the receive loop and returns immediately.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Info("status worker started")
	defer w.logger.Info("status worker stopped")
	for {
		raw, err := w.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			w.recorder.ReceiveError(metrics.FeedStatus)
			w.logger.Warn("status receive failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
			continue
		}
		_ = w.Ingest(raw)
	}
}

// Ingest decodes one message and, on success, replaces the snapshot.
func (w *Worker) Ingest(raw []byte) error {
	doc, err := decoder.DecodeStatus(raw)
	if err != nil {
		w.recorder.DecodeError(metrics.FeedStatus)
		w.logger.Warn("discarding status message", logging.Err(err))
		return err
	}

	now := w.now()
	w.mu.Lock()
	w.snapshot = Snapshot(doc)
	w.updated = now
	w.mu.Unlock()

	w.recorder.FrameReceived(metrics.FeedStatus, now)
	return nil
}

// Status returns a copy of the latest snapshot, or false before the first
// message.
func (w *Worker) Status() (Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.snapshot == nil {
		return nil, false
	}
	return w.snapshot.Clone(), true
}

// Updated reports when the snapshot was last replaced.
func (w *Worker) Updated() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updated
}
