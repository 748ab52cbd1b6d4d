// Package spectrum ingests power spectra from the publisher, keeping the
// latest value, a bounded history and an optional running average.
package spectrum

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

// Options configures a Worker. Zero values pick defaults.
type Options struct {
	HistoryLength int
	Logger        logging.Logger
	Recorder      metrics.Recorder
	Now           func() time.Time
	// RetryDelay is the pause after a transport receive error.
	RetryDelay time.Duration
}

// Worker owns the spectrum subscription and the state derived from it.
type Worker struct {
	sub        transport.Subscriber
	logger     logging.Logger
	recorder   metrics.Recorder
	now        func() time.Time
	retryDelay time.Duration

	mu       sync.RWMutex
	history  *History
	current  []float32
	updated  time.Time
	sequence uint64
	integ    integrator
}

// NewWorker builds a worker reading from sub. Call Start to begin receiving.
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
		logger:     opts.Logger.With(logging.F("worker", metrics.FeedSpectrum)),
		recorder:   opts.Recorder,
		now:        opts.Now,
		retryDelay: opts.RetryDelay,
		history:    NewHistory(opts.HistoryLength),
	}
}

// Start launches the receive loop and returns immediately. The loop ends
// only when ctx is done or the subscriber is closed.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Info("spectrum worker started", logging.F("history_length", w.history.Cap()))
	for {
		raw, err := w.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				w.logger.Info("spectrum worker stopped")
				return
			}
			w.recorder.ReceiveError(metrics.FeedSpectrum)
			w.logger.Warn("spectrum receive failed", logging.Err(err))
			select {
			case <-ctx.Done():
				w.logger.Info("spectrum worker stopped")
				return
			case <-time.After(w.retryDelay):
			}
			continue
		}
		_ = w.Ingest(raw)
	}
}

// Ingest decodes one frame and applies it. A DecodeError leaves all state
// untouched.
func (w *Worker) Ingest(raw []byte) error {
	values, err := decoder.DecodeSpectrum(raw)
	if err != nil {
		w.recorder.DecodeError(metrics.FeedSpectrum)
		w.logger.Warn("discarding spectrum frame", logging.Err(err))
		return err
	}

	now := w.now()
	w.mu.Lock()
	w.history.Insert(Sample{Timestamp: now, Values: values})

	reshaped := false
	if w.integ.enabled {
		if w.integ.count > 0 && len(w.current) != len(values) {
			// Bin count changed mid-integration: start over from this frame.
			reshaped = true
			w.integ.count = 0
		}
		w.current = fold(w.current, values, w.integ.count)
		w.integ.count++
	} else {
		w.current = values
	}
	w.updated = now
	w.sequence++

	historyLen := w.history.Len()
	count := w.integ.count
	peak := summarize(w.current).Max
	w.mu.Unlock()

	if reshaped {
		w.logger.Warn("spectrum length changed while integrating, restarting average",
			logging.F("bins", len(values)))
	}
	w.recorder.FrameReceived(metrics.FeedSpectrum, now)
	w.recorder.SpectrumState(historyLen, count, peak)
	return nil
}

// SetContinuousIntegration switches running averaging on or off. The frame
// count always restarts, so the next frame is taken verbatim.
func (w *Worker) SetContinuousIntegration(enabled bool) {
	w.mu.Lock()
	w.integ.set(enabled)
	w.mu.Unlock()
	w.logger.Info("continuous integration toggled", logging.F("enabled", enabled))
}

// Integration reports whether averaging is on and how many frames it holds.
func (w *Worker) Integration() (enabled bool, count int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.integ.enabled, w.integ.count
}

// Current returns a copy of the latest spectrum, or false before the first
// frame.
func (w *Worker) Current() ([]float32, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return nil, false
	}
	return append([]float32(nil), w.current...), true
}

// History returns the stored samples newest first. The slice is a copy;
// later frames do not show up in it.
func (w *Worker) History() []Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.history.Snapshot()
}

// Summary describes the current spectrum, or false before the first frame.
func (w *Worker) Summary() (Summary, bool) {
	s, _, ok := w.Latest()
	return s, ok
}

// Sequence counts applied frames; it changes whenever Current does.
func (w *Worker) Sequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sequence
}

// Latest returns the summary and a copy of the current spectrum read under
// one lock, so both describe the same frame.
func (w *Worker) Latest() (Summary, []float32, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return Summary{}, nil, false
	}
	s := summarize(w.current)
	s.Sequence = w.sequence
	s.Timestamp = w.updated
	return s, append([]float32(nil), w.current...), true
}
