package spectrum

import "time"

// DefaultHistoryLength is the history capacity used when none is configured.
const DefaultHistoryLength = 1000

// Sample is one received spectrum. Values is shared with readers and must not
// be modified.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Values    []float32 `json:"values"`
}

// History is a fixed-capacity ring of samples read newest first. It is not
// safe for concurrent use; Worker guards it.
type History struct {
	buf  []Sample
	head int // index of the newest sample
	size int
}

// NewHistory allocates a ring holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryLength
	}
	return &History{buf: make([]Sample, capacity)}
}

// Insert evicts the oldest sample once the ring is full, then places s at
// the front.
func (h *History) Insert(s Sample) {
	if h.size >= len(h.buf) {
		oldest := (h.head + h.size - 1) % len(h.buf)
		h.buf[oldest] = Sample{}
		h.size--
	}
	h.head = (h.head - 1 + len(h.buf)) % len(h.buf)
	h.buf[h.head] = s
	h.size++
}

// Len reports how many samples are held.
func (h *History) Len() int { return h.size }

// Cap reports the ring capacity.
func (h *History) Cap() int { return len(h.buf) }

// Snapshot copies the held samples, newest first.
func (h *History) Snapshot() []Sample {
	out := make([]Sample, h.size)
	for i := range out {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}
