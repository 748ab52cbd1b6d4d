package status

import (
	"encoding/json"
	"maps"
)

// Snapshot is one decoded status document. Keys and value types are defined
// by the publisher; numbers are float64.
type Snapshot map[string]any

// Clone returns a shallow copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// Number reads a numeric field.
func (s Snapshot) Number(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// VLSR is the local-standard-of-rest velocity in km/s.
func (s Snapshot) VLSR() (float64, bool) { return s.Number("vlsr") }

// CenterFrequency is the receiver center frequency in Hz, when published.
func (s Snapshot) CenterFrequency() (float64, bool) { return s.Number("center_frequency") }

// Bandwidth is the receiver bandwidth in Hz, when published.
func (s Snapshot) Bandwidth() (float64, bool) { return s.Number("bandwidth") }
