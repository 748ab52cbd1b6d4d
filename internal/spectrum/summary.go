package spectrum

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// Summary describes the current spectrum for dashboards and metrics.
type Summary struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Bins      int       `json:"bins"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	PeakBin   int       `json:"peakBin"`
}

func summarize(values []float32) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	v := widen(values)
	return Summary{
		Bins:    len(v),
		Min:     floats.Min(v),
		Max:     floats.Max(v),
		Mean:    floats.Sum(v) / float64(len(v)),
		PeakBin: floats.MaxIdx(v),
	}
}
