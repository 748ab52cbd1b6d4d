package spectrum

import vecmath "github.com/cwbudde/algo-vecmath"

// integrator is the continuous-integration state: whether running averaging
// is on and how many frames have been folded in since it was last toggled.
type integrator struct {
	enabled bool
	count   int
}

// set toggles integration. The count restarts even when the flag is unchanged.
func (in *integrator) set(enabled bool) {
	in.enabled = enabled
	in.count = 0
}

// fold returns the element-wise average of prev and next with weights
// (count, 1). A zero count or a missing prev yields a copy of next.
func fold(prev, next []float32, count int) []float32 {
	if count == 0 || prev == nil {
		return append([]float32(nil), next...)
	}

	acc := make([]float64, len(next))
	nextF := widen(next)
	vecmath.ScaleBlock(acc, widen(prev), float64(count))
	vecmath.AddBlockInPlace(acc, nextF)
	vecmath.ScaleBlock(nextF, acc, 1/float64(count+1))
	return narrow(nextF)
}

func widen(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func narrow(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
