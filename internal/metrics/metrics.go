// Package metrics exposes ingestion counters and gauges to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed labels.
const (
	FeedSpectrum = "spectrum"
	FeedStatus   = "status"
)

// Recorder is what the workers report into.
type Recorder interface {
	FrameReceived(feed string, at time.Time)
	DecodeError(feed string)
	ReceiveError(feed string)
	SpectrumState(historyLen, integrationCount int, peak float64)
}

// Nop discards all observations.
type Nop struct{}

// FrameReceived does nothing.
func (Nop) FrameReceived(string, time.Time) {}

// DecodeError does nothing.
func (Nop) DecodeError(string) {}

// ReceiveError does nothing.
func (Nop) ReceiveError(string) {}

// SpectrumState does nothing.
func (Nop) SpectrumState(int, int, float64) {}

// Metrics holds the Prometheus collectors for both feeds.
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	receiveErrors    *prometheus.CounterVec
	lastUpdate       *prometheus.GaugeVec
	historyLength    prometheus.Gauge
	integrationCount prometheus.Gauge
	peakPower        prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "srt_frames_received_total",
			Help: "Messages received from the publisher, per feed.",
		}, []string{"feed"}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "srt_decode_errors_total",
			Help: "Messages discarded because they could not be decoded.",
		}, []string{"feed"}),
		receiveErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "srt_receive_errors_total",
			Help: "Transport receive failures.",
		}, []string{"feed"}),
		lastUpdate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "srt_last_update_timestamp_seconds",
			Help: "Unix time of the last decoded message, per feed.",
		}, []string{"feed"}),
		historyLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "srt_spectrum_history_length",
			Help: "Spectra currently held in the history ring.",
		}),
		integrationCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "srt_spectrum_integration_count",
			Help: "Frames folded into the running average since integration was toggled.",
		}),
		peakPower: factory.NewGauge(prometheus.GaugeOpts{
			Name: "srt_spectrum_peak_power",
			Help: "Maximum bin value of the current spectrum.",
		}),
	}
}

// FrameReceived counts a decoded message and stamps the feed's last update.
func (m *Metrics) FrameReceived(feed string, at time.Time) {
	m.framesReceived.WithLabelValues(feed).Inc()
	m.lastUpdate.WithLabelValues(feed).Set(float64(at.UnixNano()) / 1e9)
}

// DecodeError counts a discarded message.
func (m *Metrics) DecodeError(feed string) {
	m.decodeErrors.WithLabelValues(feed).Inc()
}

// ReceiveError counts a transport failure.
func (m *Metrics) ReceiveError(feed string) {
	m.receiveErrors.WithLabelValues(feed).Inc()
}

// SpectrumState publishes the spectrum worker's gauges after each frame.
func (m *Metrics) SpectrumState(historyLen, integrationCount int, peak float64) {
	m.historyLength.Set(float64(historyLen))
	m.integrationCount.Set(float64(integrationCount))
	m.peakPower.Set(peak)
}
