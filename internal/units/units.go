// Package units converts raw frequencies in Hz into the display unit the
// operator selected, including a velocity scale referenced to the live vlsr.
package units

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rjboer/GoSRT/internal/status"
)

// SpeedOfLightKMS is c in km/s as used by the velocity conversion.
const SpeedOfLightKMS = 299792.46

var (
	// ErrInvalidConfiguration covers unknown units and km/s without a
	// positive rest frequency.
	ErrInvalidConfiguration = errors.New("invalid unit configuration")
	// ErrMissingDependency means a km/s conversion had no status or no vlsr.
	ErrMissingDependency = errors.New("missing status dependency")
)

// Unit is a display unit name.
type Unit string

const (
	Hz       Unit = "Hz"
	KHz      Unit = "kHz"
	MHz      Unit = "MHz"
	GHz      Unit = "GHz"
	KmPerSec Unit = "km/s"
)

// Units lists the supported display units in menu order.
func Units() []Unit { return []Unit{Hz, KHz, MHz, GHz, KmPerSec} }

var scale = map[Unit]float64{Hz: 1, KHz: 1e3, MHz: 1e6, GHz: 1e9}

// ParseUnit accepts exactly the unit labels returned by Units.
func ParseUnit(name string) (Unit, error) {
	u := Unit(name)
	if _, ok := scale[u]; ok || u == KmPerSec {
		return u, nil
	}
	return "", fmt.Errorf("%w: unknown unit %q", ErrInvalidConfiguration, name)
}

// StatusSource supplies the latest status snapshot.
type StatusSource interface {
	Status() (status.Snapshot, bool)
}

type config struct {
	unit       Unit
	freqEmitHz float64
}

// Converter holds the selected unit. It refers to, but does not own, the
// status source used for velocity conversions.
type Converter struct {
	src StatusSource

	mu  sync.RWMutex
	cfg config
}

// NewConverter starts in MHz with no rest frequency.
func NewConverter(src StatusSource) *Converter {
	return &Converter{src: src, cfg: config{unit: MHz}}
}

// SetUnit selects the display unit. km/s requires freqEmitHz, the rest
// frequency of the observed line, to be positive. On error nothing changes.
func (c *Converter) SetUnit(name string, freqEmitHz float64) error {
	u, err := ParseUnit(name)
	if err != nil {
		return err
	}
	if u == KmPerSec && !(freqEmitHz > 0) {
		return fmt.Errorf("%w: km/s needs a positive rest frequency, got %v Hz", ErrInvalidConfiguration, freqEmitHz)
	}

	c.mu.Lock()
	c.cfg = config{unit: u, freqEmitHz: freqEmitHz}
	c.mu.Unlock()
	return nil
}

// Unit reports the selected unit and rest frequency.
func (c *Converter) Unit() (Unit, float64) {
	cfg := c.config()
	return cfg.unit, cfg.freqEmitHz
}

func (c *Converter) config() config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Converter) vlsr() (float64, error) {
	if c.src == nil {
		return 0, fmt.Errorf("%w: no status source", ErrMissingDependency)
	}
	snap, ok := c.src.Status()
	if !ok {
		return 0, fmt.Errorf("%w: no status received yet", ErrMissingDependency)
	}
	v, ok := snap.VLSR()
	if !ok {
		return 0, fmt.Errorf("%w: status has no vlsr", ErrMissingDependency)
	}
	return v, nil
}

// ToDisplay converts freqHz into the selected unit.
//
// km/s uses the first-order Doppler approximation
// vlsr + (f/f0 - 1) * c, which keeps frequency bins evenly spaced in velocity
// and is only accurate close to the rest frequency f0.
func (c *Converter) ToDisplay(freqHz float64) (float64, error) {
	cfg := c.config()
	var vlsr float64
	if cfg.unit == KmPerSec {
		v, err := c.vlsr()
		if err != nil {
			return 0, err
		}
		vlsr = v
	}
	return convert(cfg, vlsr, freqHz)
}

func convert(cfg config, vlsr, freqHz float64) (float64, error) {
	if div, ok := scale[cfg.unit]; ok {
		if div == 1 {
			return freqHz, nil
		}
		return freqHz / div, nil
	}
	if cfg.unit == KmPerSec {
		return vlsr + (freqHz/cfg.freqEmitHz-1)*SpeedOfLightKMS, nil
	}
	return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidConfiguration, cfg.unit)
}

// ToDisplayWithLabel converts freqHz and returns the unit label alongside.
func (c *Converter) ToDisplayWithLabel(freqHz float64) (float64, string, error) {
	cfg := c.config()
	var vlsr float64
	if cfg.unit == KmPerSec {
		v, err := c.vlsr()
		if err != nil {
			return 0, "", err
		}
		vlsr = v
	}
	v, err := convert(cfg, vlsr, freqHz)
	if err != nil {
		return 0, "", err
	}
	return v, string(cfg.unit), nil
}

// FormatDisplay renders freqHz as "<value> <unit>".
func (c *Converter) FormatDisplay(freqHz float64) (string, error) {
	v, label, err := c.ToDisplayWithLabel(freqHz)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'g', -1, 64) + " " + label, nil
}

// ToDisplayCenterBandwidth converts a center frequency and bandwidth pair.
// In km/s the center is the source's systemic velocity (vlsr) whatever cfHz
// is, and the bandwidth is scaled without offset.
func (c *Converter) ToDisplayCenterBandwidth(cfHz, bwHz float64) (cf, bw float64, err error) {
	cf, bw, _, err = c.ToDisplayCenterBandwidthWithLabel(cfHz, bwHz)
	return cf, bw, err
}

// ToDisplayCenterBandwidthWithLabel is ToDisplayCenterBandwidth plus the unit
// both values are expressed in.
func (c *Converter) ToDisplayCenterBandwidthWithLabel(cfHz, bwHz float64) (cf, bw float64, unit Unit, err error) {
	cfg := c.config()
	if cfg.unit == KmPerSec {
		vlsr, err := c.vlsr()
		if err != nil {
			return 0, 0, cfg.unit, err
		}
		return vlsr, bwHz / cfg.freqEmitHz * SpeedOfLightKMS, cfg.unit, nil
	}
	if cf, err = convert(cfg, 0, cfHz); err != nil {
		return 0, 0, cfg.unit, err
	}
	if bw, err = convert(cfg, 0, bwHz); err != nil {
		return 0, 0, cfg.unit, err
	}
	return cf, bw, cfg.unit, nil
}

// ToDisplayAxis converts every frequency with a single read of the unit and
// status, so the whole axis is consistent. The returned unit is the one the
// axis is expressed in.
func (c *Converter) ToDisplayAxis(freqsHz []float64) ([]float64, Unit, error) {
	cfg := c.config()
	var vlsr float64
	if cfg.unit == KmPerSec {
		v, err := c.vlsr()
		if err != nil {
			return nil, cfg.unit, err
		}
		vlsr = v
	}
	out := make([]float64, len(freqsHz))
	for i, f := range freqsHz {
		v, err := convert(cfg, vlsr, f)
		if err != nil {
			return nil, cfg.unit, err
		}
		out[i] = v
	}
	return out, cfg.unit, nil
}

// BinFrequencies returns the center frequency of each of bins FFT-shifted
// bins spanning bwHz around cfHz.
func BinFrequencies(cfHz, bwHz float64, bins int) []float64 {
	if bins <= 0 {
		return nil
	}
	out := make([]float64, bins)
	step := bwHz / float64(bins)
	for i := range out {
		out[i] = cfHz + float64(i-bins/2)*step
	}
	return out
}
