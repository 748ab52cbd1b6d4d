package telemetry

import (
	"context"
	"time"

	"github.com/rjboer/GoSRT/internal/logging"
	"github.com/rjboer/GoSRT/internal/units"
)

// LogReporter periodically logs a one-line summary of the ingested data. It
// stands in for the web API when that is disabled.
type LogReporter struct {
	logger   logging.Logger
	spectrum SpectrumSource
	status   StatusSource
	units    *units.Converter
}

// NewLogReporter builds a reporter with the provided logger.
func NewLogReporter(logger logging.Logger, spec SpectrumSource, stat StatusSource, conv *units.Converter) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger, spectrum: spec, status: stat, units: conv}
}

// Report logs the current state once.
func (r LogReporter) Report() {
	fields := []logging.Field{{Key: "subsystem", Value: "telemetry"}}

	summary, _, ok := r.spectrum.Latest()
	if !ok {
		r.logger.Info("waiting for spectrum", fields...)
		return
	}
	enabled, count := r.spectrum.Integration()
	fields = append(fields,
		logging.F("sequence", summary.Sequence),
		logging.F("bins", summary.Bins),
		logging.F("peak", summary.Max),
		logging.F("peak_bin", summary.PeakBin),
		logging.F("history", len(r.spectrum.History())),
	)
	if enabled {
		fields = append(fields, logging.F("integrated_frames", count))
	}

	if snap, ok := r.status.Status(); ok {
		if v, ok := snap.VLSR(); ok {
			fields = append(fields, logging.F("vlsr", v))
		}
		cf, okCF := snap.CenterFrequency()
		bw, okBW := snap.Bandwidth()
		if okCF && okBW {
			if c, b, unit, err := r.units.ToDisplayCenterBandwidthWithLabel(cf, bw); err == nil {
				fields = append(fields,
					logging.F("center", c),
					logging.F("bandwidth", b),
					logging.F("unit", unit),
				)
			}
		}
	}
	r.logger.Info("spectrum sample", fields...)
}

// Run calls Report every interval until ctx is done.
func (r LogReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}
