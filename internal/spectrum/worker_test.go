package spectrum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/GoSRT/internal/decoder"
	"github.com/rjboer/GoSRT/internal/logging"
	"github.com/rjboer/GoSRT/internal/transport"
)

type countingRecorder struct {
	frames, decodeErrs, receiveErrs int
	lastHistory, lastCount          int
}

func (r *countingRecorder) FrameReceived(string, time.Time) { r.frames++ }
func (r *countingRecorder) DecodeError(string)              { r.decodeErrs++ }
func (r *countingRecorder) ReceiveError(string)             { r.receiveErrs++ }
func (r *countingRecorder) SpectrumState(h, c int, _ float64) {
	r.lastHistory, r.lastCount = h, c
}

func newTestWorker(historyLength int, rec *countingRecorder) *Worker {
	opts := Options{
		HistoryLength: historyLength,
		Logger:        logging.Nop(),
	}
	if rec != nil {
		opts.Recorder = rec
	}
	return NewWorker(transport.NewChanSubscriber(0), opts)
}

func ingest(t *testing.T, w *Worker, values ...float32) {
	t.Helper()
	if err := w.Ingest(decoder.EncodeSpectrum(values)); err != nil {
		t.Fatalf("ingest %v: %v", values, err)
	}
}

func expectCurrent(t *testing.T, w *Worker, want ...float32) {
	t.Helper()
	got, ok := w.Current()
	if !ok {
		t.Fatal("expected current spectrum")
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d bins got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bin %d expected %v got %v (full %v)", i, want[i], got[i], got)
		}
	}
}

func TestCurrentBeforeFirstFrame(t *testing.T) {
	w := newTestWorker(10, nil)
	if _, ok := w.Current(); ok {
		t.Fatal("expected no data before first frame")
	}
	if _, ok := w.Summary(); ok {
		t.Fatal("expected no summary before first frame")
	}
	if len(w.History()) != 0 {
		t.Fatal("expected empty history")
	}
}

func TestIngestWithoutIntegrationReplaces(t *testing.T) {
	w := newTestWorker(10, nil)
	ingest(t, w, 1, 2)
	ingest(t, w, 3, 4)
	expectCurrent(t, w, 3, 4)
}

func TestIntegrationFirstSampleIsVerbatim(t *testing.T) {
	w := newTestWorker(10, nil)
	w.SetContinuousIntegration(true)
	ingest(t, w, 7, -3)
	expectCurrent(t, w, 7, -3)
	if enabled, count := w.Integration(); !enabled || count != 1 {
		t.Fatalf("expected enabled with count 1, got %v %d", enabled, count)
	}
}

func TestIntegrationEnabledAfterFirstFrame(t *testing.T) {
	w := newTestWorker(10, nil)
	ingest(t, w, 1, 2)
	expectCurrent(t, w, 1, 2)

	w.SetContinuousIntegration(true)
	ingest(t, w, 3, 4) // count 0: pure s1
	expectCurrent(t, w, 3, 4)
	ingest(t, w, 5, 6) // weights (1,1)
	expectCurrent(t, w, 4, 5)
}

func TestIntegrationEnabledThroughout(t *testing.T) {
	w := newTestWorker(10, nil)
	w.SetContinuousIntegration(true)
	ingest(t, w, 1, 2)
	expectCurrent(t, w, 1, 2)
	ingest(t, w, 3, 4)
	expectCurrent(t, w, 2, 3)
	ingest(t, w, 5, 6)
	expectCurrent(t, w, 3, 4)
}

func TestToggleResetsIntegrationCount(t *testing.T) {
	w := newTestWorker(10, nil)
	w.SetContinuousIntegration(true)
	ingest(t, w, 1, 1)
	ingest(t, w, 3, 3)

	w.SetContinuousIntegration(false)
	w.SetContinuousIntegration(true)
	if _, count := w.Integration(); count != 0 {
		t.Fatalf("expected count reset, got %d", count)
	}
	ingest(t, w, 10, 20)
	expectCurrent(t, w, 10, 20)
}

func TestReenablingResetsCount(t *testing.T) {
	w := newTestWorker(10, nil)
	w.SetContinuousIntegration(true)
	ingest(t, w, 2)
	ingest(t, w, 4)
	w.SetContinuousIntegration(true)
	if enabled, count := w.Integration(); !enabled || count != 0 {
		t.Fatalf("expected enabled with count 0, got %v %d", enabled, count)
	}
	ingest(t, w, 9)
	expectCurrent(t, w, 9)
}

func TestIntegrationRestartsOnLengthChange(t *testing.T) {
	w := newTestWorker(10, nil)
	w.SetContinuousIntegration(true)
	ingest(t, w, 1, 2)
	ingest(t, w, 3, 4)
	ingest(t, w, 5, 6, 7)
	expectCurrent(t, w, 5, 6, 7)
	if _, count := w.Integration(); count != 1 {
		t.Fatalf("expected restarted count 1, got %d", count)
	}
}

func TestCurrentIsACopy(t *testing.T) {
	w := newTestWorker(10, nil)
	ingest(t, w, 1, 2)
	got, _ := w.Current()
	got[0] = 99
	expectCurrent(t, w, 1, 2)
}

func TestHistoryFromWorkerIsNewestFirstAndBounded(t *testing.T) {
	rec := &countingRecorder{}
	w := newTestWorker(3, rec)
	for i := 1; i <= 5; i++ {
		ingest(t, w, float32(i))
	}
	hist := w.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 samples got %d", len(hist))
	}
	if hist[0].Values[0] != 5 || hist[2].Values[0] != 3 {
		t.Fatalf("unexpected ordering %+v", hist)
	}
	if rec.frames != 5 || rec.lastHistory != 3 {
		t.Fatalf("unexpected recorder state %+v", rec)
	}

	ingest(t, w, 6)
	if hist[0].Values[0] != 5 {
		t.Fatal("history snapshot aliased live state")
	}
}

func TestDecodeErrorLeavesStateUntouched(t *testing.T) {
	rec := &countingRecorder{}
	w := newTestWorker(3, rec)
	ingest(t, w, 1, 2)
	err := w.Ingest([]byte{1, 2, 3})
	if !errors.Is(err, decoder.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	expectCurrent(t, w, 1, 2)
	if len(w.History()) != 1 || rec.decodeErrs != 1 || w.Sequence() != 1 {
		t.Fatalf("state changed after bad frame: hist=%d rec=%+v seq=%d", len(w.History()), rec, w.Sequence())
	}
}

func TestSummaryUsesCurrentSpectrum(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w := NewWorker(transport.NewChanSubscriber(0), Options{
		Logger: logging.Nop(),
		Now:    func() time.Time { return stamp },
	})
	ingest(t, w, -2, 8, 3, 3)
	s, ok := w.Summary()
	if !ok {
		t.Fatal("expected summary")
	}
	if s.Bins != 4 || s.Min != -2 || s.Max != 8 || s.PeakBin != 1 || s.Mean != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.Timestamp.Equal(stamp) || s.Sequence != 1 {
		t.Fatalf("unexpected summary metadata %+v", s)
	}
}

func TestStartReceivesFromSubscriberAndSkipsBadFrames(t *testing.T) {
	sub := transport.NewChanSubscriber(4)
	w := NewWorker(sub, Options{HistoryLength: 10, Logger: logging.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	frames := [][]byte{
		decoder.EncodeSpectrum([]float32{1, 1}),
		{0xff},
		decoder.EncodeSpectrum([]float32{2, 2}),
	}
	for _, f := range frames {
		if err := sub.Publish(ctx, f); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Sequence() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("worker applied %d frames, expected 2", w.Sequence())
		}
		time.Sleep(5 * time.Millisecond)
	}
	expectCurrent(t, w, 2, 2)
	if len(w.History()) != 2 {
		t.Fatalf("expected 2 history entries got %d", len(w.History()))
	}
}

func TestLatestPairsSummaryWithValues(t *testing.T) {
	w := newTestWorker(4, nil)
	ingest(t, w, 1, 5, 2)
	s, values, ok := w.Latest()
	if !ok {
		t.Fatal("expected latest spectrum")
	}
	if s.Bins != len(values) || s.Max != 5 || s.Sequence != w.Sequence() {
		t.Fatalf("summary %+v does not match values %v", s, values)
	}
}

func uniformFrame(bins int, v float32) []byte {
	values := make([]float32, bins)
	for i := range values {
		values[i] = v
	}
	return decoder.EncodeSpectrum(values)
}

func expectUniform(t *testing.T, what string, values []float32) {
	t.Helper()
	for i := range values {
		if values[i] != values[0] {
			t.Errorf("%s torn: bin %d is %v, bin 0 is %v", what, i, values[i], values[0])
			return
		}
	}
}

// Every published frame is flat, and any average of flat frames is flat, so a
// reader that sees two different bin values saw a half-written spectrum.
func TestConcurrentReadersSeeWholeFrames(t *testing.T) {
	const (
		bins   = 64
		frames = 400
	)
	sub := transport.NewChanSubscriber(16)
	w := NewWorker(sub, Options{HistoryLength: 32, Logger: logging.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if cur, ok := w.Current(); ok {
					expectUniform(t, "current", cur)
				}
				for _, sample := range w.History() {
					expectUniform(t, "history", sample.Values)
				}
				if s, values, ok := w.Latest(); ok {
					expectUniform(t, "latest", values)
					if s.Min != s.Max || s.Bins != bins {
						t.Errorf("summary %+v does not describe a flat frame", s)
					}
				}
				w.Integration()
			}
		}()
	}

	readers.Add(1)
	go func() {
		defer readers.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			w.SetContinuousIntegration(i%2 == 0)
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 1; i <= frames; i++ {
		if err := sub.Publish(ctx, uniformFrame(bins, float32(i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for w.Sequence() < frames {
		if time.Now().After(deadline) {
			t.Fatalf("worker applied %d of %d frames", w.Sequence(), frames)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(done)
	readers.Wait()

	if got := len(w.History()); got != 32 {
		t.Fatalf("expected full history of 32, got %d", got)
	}
}
