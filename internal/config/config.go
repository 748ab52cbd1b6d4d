// Package config loads the dashboard ingestion settings from YAML, applies
// SRT_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoSRT/internal/transport"
)

const (
	DefaultStatusPort    = 5555
	DefaultSpectrumPort  = 5560
	DefaultHistoryLength = 1000

	maxHistoryLength = 100_000
)

// Config is the full runtime configuration.
type Config struct {
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Status    StatusConfig    `yaml:"status"`
	Display   DisplayConfig   `yaml:"display"`
	Web       WebConfig       `yaml:"web"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

type SpectrumConfig struct {
	Endpoint      transport.Endpoint `yaml:"endpoint"`
	HistoryLength int                `yaml:"history_length"`
	Integrate     bool               `yaml:"integrate"`
}

type StatusConfig struct {
	Endpoint transport.Endpoint `yaml:"endpoint"`
}

// DisplayConfig is the initial frequency display unit. FreqEmitHz is the
// rest frequency of the observed line and is required for km/s.
type DisplayConfig struct {
	Unit       string  `yaml:"unit"`
	FreqEmitHz float64 `yaml:"freq_emit_hz"`
}

// WebConfig controls the dashboard HTTP API. An empty Addr disables it.
type WebConfig struct {
	Addr            string        `yaml:"addr"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Advertise       bool          `yaml:"advertise"`
}

// DiscoveryConfig resolves publisher hosts over mDNS when an endpoint host is
// left empty.
type DiscoveryConfig struct {
	Service string        `yaml:"service"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Spectrum: SpectrumConfig{
			Endpoint:      transport.Endpoint{Host: "localhost", Port: DefaultSpectrumPort},
			HistoryLength: DefaultHistoryLength,
		},
		Status: StatusConfig{
			Endpoint: transport.Endpoint{Host: "localhost", Port: DefaultStatusPort},
		},
		Display: DisplayConfig{
			Unit: "MHz",
		},
		Web: WebConfig{
			Addr:            ":8080",
			RefreshInterval: 500 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			Service: "_srt._tcp",
			Timeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path on top of the defaults, then applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFromFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("SRT_SPECTRUM_HOST", &cfg.Spectrum.Endpoint.Host)
	str("SRT_STATUS_HOST", &cfg.Status.Endpoint.Host)
	str("SRT_WEB_ADDR", &cfg.Web.Addr)
	str("SRT_DISPLAY_UNIT", &cfg.Display.Unit)
	str("SRT_LOG_LEVEL", &cfg.Log.Level)
	str("SRT_LOG_FORMAT", &cfg.Log.Format)
	str("SRT_LOG_FILE", &cfg.Log.File)

	for key, dst := range map[string]*int{
		"SRT_SPECTRUM_PORT":  &cfg.Spectrum.Endpoint.Port,
		"SRT_STATUS_PORT":    &cfg.Status.Endpoint.Port,
		"SRT_HISTORY_LENGTH": &cfg.Spectrum.HistoryLength,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("SRT_FREQ_EMIT_HZ"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SRT_FREQ_EMIT_HZ: %w", err)
		}
		cfg.Display.FreqEmitHz = f
	}
	if v, ok := lookup("SRT_INTEGRATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SRT_INTEGRATE: %w", err)
		}
		cfg.Spectrum.Integrate = b
	}
	return nil
}

// Validate checks ports and sizes. Empty endpoint hosts are allowed; they
// are resolved through discovery at startup.
func (c Config) Validate() error {
	for name, ep := range map[string]transport.Endpoint{
		"spectrum": c.Spectrum.Endpoint,
		"status":   c.Status.Endpoint,
	} {
		if ep.Port <= 0 || ep.Port > 65535 {
			return fmt.Errorf("%s port %d out of range", name, ep.Port)
		}
	}
	if c.Spectrum.HistoryLength < 1 || c.Spectrum.HistoryLength > maxHistoryLength {
		return fmt.Errorf("history length must be between 1 and %d", maxHistoryLength)
	}
	if c.Web.Addr != "" && c.Web.RefreshInterval <= 0 {
		return errors.New("web refresh interval must be positive")
	}
	if c.Discovery.Service == "" && (c.Spectrum.Endpoint.Host == "" || c.Status.Endpoint.Host == "") {
		return errors.New("endpoint host is empty and no discovery service is configured")
	}
	return nil
}
