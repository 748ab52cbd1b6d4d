package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoSRT/internal/config"
	"github.com/rjboer/GoSRT/internal/logging"
	"github.com/rjboer/GoSRT/internal/mdns"
	"github.com/rjboer/GoSRT/internal/metrics"
	"github.com/rjboer/GoSRT/internal/spectrum"
	"github.com/rjboer/GoSRT/internal/status"
	"github.com/rjboer/GoSRT/internal/telemetry"
	"github.com/rjboer/GoSRT/internal/transport"
	"github.com/rjboer/GoSRT/internal/units"
)

const advertiseService = "_srtdash._tcp"

type serveFlags struct {
	spectrumHost  string
	spectrumPort  int
	statusHost    string
	statusPort    int
	historyLength int
	integrate     bool
	webAddr       string
	unit          string
	freqEmitHz    float64
	logLevel      string
	logFormat     string
	logFile       string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Subscribe to the spectrum and status feeds and serve the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(func(c *config.Config) { f.apply(cmd, c) })
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.spectrumHost, "spectrum-host", "", "Spectrum publisher host (empty: discover over mDNS)")
	fl.IntVar(&f.spectrumPort, "spectrum-port", config.DefaultSpectrumPort, "Spectrum publisher port")
	fl.StringVar(&f.statusHost, "status-host", "", "Status publisher host (empty: discover over mDNS)")
	fl.IntVar(&f.statusPort, "status-port", config.DefaultStatusPort, "Status publisher port")
	fl.IntVar(&f.historyLength, "history-length", config.DefaultHistoryLength, "Spectra kept in history")
	fl.BoolVar(&f.integrate, "integrate", false, "Start with continuous integration enabled")
	fl.StringVar(&f.webAddr, "web-addr", ":8080", "Dashboard API listen address (empty disables it)")
	fl.StringVar(&f.unit, "unit", "MHz", "Display unit (Hz|kHz|MHz|GHz|km/s)")
	fl.Float64Var(&f.freqEmitHz, "freq-emit", 0, "Rest frequency in Hz for km/s display")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format (text|json)")
	fl.StringVar(&f.logFile, "log-file", "", "Rotating log file (stderr only when empty)")
	return cmd
}

// apply copies only the flags the user set, so file and env values survive.
func (f *serveFlags) apply(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if changed("spectrum-host") {
		c.Spectrum.Endpoint.Host = f.spectrumHost
	}
	if changed("spectrum-port") {
		c.Spectrum.Endpoint.Port = f.spectrumPort
	}
	if changed("status-host") {
		c.Status.Endpoint.Host = f.statusHost
	}
	if changed("status-port") {
		c.Status.Endpoint.Port = f.statusPort
	}
	if changed("history-length") {
		c.Spectrum.HistoryLength = f.historyLength
	}
	if changed("integrate") {
		c.Spectrum.Integrate = f.integrate
	}
	if changed("web-addr") {
		c.Web.Addr = f.webAddr
	}
	if changed("unit") {
		c.Display.Unit = f.unit
	}
	if changed("freq-emit") {
		c.Display.FreqEmitHz = f.freqEmitHz
	}
	if changed("log-level") {
		c.Log.Level = f.logLevel
	}
	if changed("log-format") {
		c.Log.Format = f.logFormat
	}
	if changed("log-file") {
		c.Log.File = f.logFile
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, closer, err := logging.Open(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	logging.SetDefault(logger)

	if err := resolveEndpoints(ctx, &cfg, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	// Subscribers dial from the worker goroutines, so a publisher that is
	// down at startup does not hold up the other feed or the web API.
	dialOpts := transport.DialOptions{Logger: logger}
	specSub, err := transport.NewZMQSubscriber(ctx, cfg.Spectrum.Endpoint, dialOpts)
	if err != nil {
		return err
	}
	defer specSub.Close()
	statSub, err := transport.NewZMQSubscriber(ctx, cfg.Status.Endpoint, dialOpts)
	if err != nil {
		return err
	}
	defer statSub.Close()

	statWorker := status.NewWorker(statSub, status.Options{Logger: logger, Recorder: rec})
	specWorker := spectrum.NewWorker(specSub, spectrum.Options{
		HistoryLength: cfg.Spectrum.HistoryLength,
		Logger:        logger,
		Recorder:      rec,
	})
	if cfg.Spectrum.Integrate {
		specWorker.SetContinuousIntegration(true)
	}

	conv := units.NewConverter(statWorker)
	if err := conv.SetUnit(cfg.Display.Unit, cfg.Display.FreqEmitHz); err != nil {
		return fmt.Errorf("display unit: %w", err)
	}

	statWorker.Start(ctx)
	specWorker.Start(ctx)

	hub := telemetry.NewHub(specWorker, statWorker, conv, telemetry.HubOptions{
		Logger:          logger,
		RefreshInterval: cfg.Web.RefreshInterval,
		Gatherer:        reg,
	})

	if cfg.Web.Addr == "" {
		// No web API: fall back to periodic log lines.
		interval := cfg.Web.RefreshInterval * 10
		if interval <= 0 {
			interval = 5 * time.Second
		}
		telemetry.NewLogReporter(logger, specWorker, statWorker, conv).Run(ctx, interval)
		return nil
	}

	if cfg.Web.Advertise {
		port, err := listenPort(cfg.Web.Addr)
		if err != nil {
			return err
		}
		host, _ := os.Hostname()
		shutdown, err := mdns.Advertise("srtdash on "+host, advertiseService, port, []string{"path=/api"})
		if err != nil {
			logger.Warn("mdns advertise failed", logging.Err(err))
		} else {
			defer shutdown()
		}
	}

	telemetry.NewWebServer(cfg.Web.Addr, hub).Start(ctx)
	return nil
}

// resolveEndpoints fills empty endpoint hosts from an mDNS browse.
func resolveEndpoints(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	targets := map[string]*transport.Endpoint{
		metrics.FeedSpectrum: &cfg.Spectrum.Endpoint,
		metrics.FeedStatus:   &cfg.Status.Endpoint,
	}
	var hosts []mdns.Host
	for feed, ep := range targets {
		if ep.Host != "" {
			continue
		}
		if hosts == nil {
			found, err := mdns.Discover(ctx, cfg.Discovery.Service, cfg.Discovery.Timeout)
			if err != nil {
				return fmt.Errorf("discover %s: %w", cfg.Discovery.Service, err)
			}
			hosts = found
		}
		h, ok := pickHost(hosts, feed)
		if !ok {
			return fmt.Errorf("no %s publisher found via %s", feed, cfg.Discovery.Service)
		}
		ep.Host = h.Addr()
		logger.Info("publisher discovered", logging.F("feed", feed), logging.F("host", ep.Host), logging.F("instance", h.Instance))
	}
	return nil
}

// pickHost prefers a host advertising "feed=<feed>" in its TXT records and
// otherwise takes the first one.
func pickHost(hosts []mdns.Host, feed string) (mdns.Host, bool) {
	if len(hosts) == 0 {
		return mdns.Host{}, false
	}
	for _, h := range hosts {
		for _, txt := range h.TXT {
			if strings.EqualFold(txt, "feed="+feed) {
				return h, true
			}
		}
	}
	return hosts[0], true
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("web addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("web addr %q: %w", addr, err)
	}
	return port, nil
}
