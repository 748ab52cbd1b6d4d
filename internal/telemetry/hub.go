// Package telemetry serves the ingested spectrum and status to the
// dashboard over HTTP.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rjboer/GoSRT/internal/logging"
	"github.com/rjboer/GoSRT/internal/spectrum"
	"github.com/rjboer/GoSRT/internal/status"
	"github.com/rjboer/GoSRT/internal/units"
)

// SpectrumSource is the read and control surface of the spectrum worker.
type SpectrumSource interface {
	Latest() (spectrum.Summary, []float32, bool)
	History() []spectrum.Sample
	Sequence() uint64
	Integration() (enabled bool, count int)
	SetContinuousIntegration(enabled bool)
}

// StatusSource is the read surface of the status worker.
type StatusSource interface {
	Status() (status.Snapshot, bool)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Logger          logging.Logger
	RefreshInterval time.Duration // websocket push cadence
	Gatherer        prometheus.Gatherer
}

// Hub adapts the workers and unit converter to HTTP handlers.
type Hub struct {
	spectrum SpectrumSource
	status   StatusSource
	units    *units.Converter
	logger   logging.Logger
	refresh  time.Duration
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// NewHub builds a Hub. A nil gatherer serves the default registry.
func NewHub(spec SpectrumSource, stat StatusSource, conv *units.Converter, opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 500 * time.Millisecond
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Hub{
		spectrum: spec,
		status:   stat,
		units:    conv,
		logger:   opts.Logger.With(logging.F("subsystem", "telemetry")),
		refresh:  opts.RefreshInterval,
		gatherer: opts.Gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// IntegrationState is the wire form of the continuous-integration flag.
type IntegrationState struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

// SpectrumResponse is the current spectrum as served to the dashboard.
type SpectrumResponse struct {
	spectrum.Summary
	Values      []float32        `json:"values"`
	Integration IntegrationState `json:"integration"`
	Unit        string           `json:"unit"`
	// Axis holds the bin frequencies in Unit when the status carries the
	// receiver center frequency and bandwidth.
	Axis []float64 `json:"axis,omitempty"`
}

// UnitRequest selects a display unit.
type UnitRequest struct {
	Unit       string  `json:"unit"`
	FreqEmitHz float64 `json:"freqEmitHz"`
}

// ConvertResponse is a center/bandwidth pair in the display unit.
type ConvertResponse struct {
	Center    float64 `json:"center"`
	Bandwidth float64 `json:"bandwidth"`
	Unit      string  `json:"unit"`
}

// HistoryEntry is one history sample on the wire.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Values    []float32 `json:"values"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) spectrumResponse() (SpectrumResponse, bool) {
	summary, values, ok := h.spectrum.Latest()
	if !ok {
		return SpectrumResponse{}, false
	}
	enabled, count := h.spectrum.Integration()
	resp := SpectrumResponse{
		Summary:     summary,
		Values:      values,
		Integration: IntegrationState{Enabled: enabled, Count: count},
	}

	if axis, unit, ok := h.axis(len(values)); ok {
		// Label from the same unit read that produced the axis.
		resp.Axis = axis
		resp.Unit = string(unit)
		return resp, true
	}
	unit, _ := h.units.Unit()
	resp.Unit = string(unit)
	return resp, true
}

// axis labels bins in the display unit when status carries the tuning.
func (h *Hub) axis(bins int) ([]float64, units.Unit, bool) {
	snap, ok := h.status.Status()
	if !ok {
		return nil, "", false
	}
	cf, okCF := snap.CenterFrequency()
	bw, okBW := snap.Bandwidth()
	if !okCF || !okBW {
		return nil, "", false
	}
	axis, unit, err := h.units.ToDisplayAxis(units.BinFrequencies(cf, bw, bins))
	if err != nil {
		return nil, "", false
	}
	return axis, unit, true
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, ok := h.spectrumResponse()
	if !ok {
		http.Error(w, "no spectrum received yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp)
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	history := h.spectrum.History()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		if limit < len(history) {
			history = history[:limit]
		}
	}
	out := make([]HistoryEntry, len(history))
	for i, s := range history {
		out[i] = HistoryEntry{Timestamp: s.Timestamp, Values: s.Values}
	}
	writeJSON(w, out)
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, ok := h.status.Status()
	if !ok {
		http.Error(w, "no status received yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *Hub) handleIntegration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req IntegrationState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid integration payload: %v", err), http.StatusBadRequest)
			return
		}
		h.spectrum.SetContinuousIntegration(req.Enabled)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	enabled, count := h.spectrum.Integration()
	writeJSON(w, IntegrationState{Enabled: enabled, Count: count})
}

func (h *Hub) handleUnits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req UnitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid unit payload: %v", err), http.StatusBadRequest)
			return
		}
		if err := h.units.SetUnit(req.Unit, req.FreqEmitHz); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Info("display unit changed", logging.F("unit", req.Unit), logging.F("freq_emit_hz", req.FreqEmitHz))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	unit, f0 := h.units.Unit()
	writeJSON(w, UnitRequest{Unit: string(unit), FreqEmitHz: f0})
}

func (h *Hub) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	cf, err := strconv.ParseFloat(q.Get("cf"), 64)
	if err != nil {
		http.Error(w, "cf must be a frequency in Hz", http.StatusBadRequest)
		return
	}
	bw, err := strconv.ParseFloat(q.Get("bw"), 64)
	if err != nil {
		http.Error(w, "bw must be a frequency in Hz", http.StatusBadRequest)
		return
	}

	center, bandwidth, unit, err := h.units.ToDisplayCenterBandwidthWithLabel(cf, bw)
	switch {
	case errors.Is(err, units.ErrMissingDependency):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, ConvertResponse{Center: center, Bandwidth: bandwidth, Unit: string(unit)})
}
