package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/GoSRT/internal/logging"
)

// WebServer exposes the dashboard API.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// Routes returns the dashboard API mux.
func (h *Hub) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/spectrum", h.handleSpectrum)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/integration", h.handleIntegration)
	mux.HandleFunc("/api/units", h.handleUnits)
	mux.HandleFunc("/api/convert", h.handleConvert)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// NewWebServer builds an HTTP server for hub on addr.
func NewWebServer(addr string, hub *Hub) *WebServer {
	return &WebServer{
		hub:    hub,
		logger: hub.logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           hub.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web shutdown", logging.Err(err))
		}
	}()

	w.logger.Info("web api listening", logging.F("addr", w.srv.Addr))
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.logger.Error("web server error", logging.Err(err))
	}
}
