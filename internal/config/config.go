// Package config holds the panel's runtime configuration.
//
// Values come from DefaultConfig, optionally overlaid by a TOML file
// (Load), and finally by command-line flags in cmd/dartpanel.
//
// Example dartpanel.toml:
//
//	addr = ":8090"
//	backend_url = "http://127.0.0.1:7878/api/v1"
//	jpeg_quality = 85
//	min_backoff = "500ms"
//	max_backoff = "30s"
//
//	[colors]
//	target = "#ff0000"
//	throw = "#ff8800"
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/jfehre/countdart/panel/internal/render"
)

// Config defines the runtime configuration for the panel server.
type Config struct {
	Addr                string
	BackendURL          string
	WrapperWidth        float64
	JPEGQuality         int
	Colors              render.StyleColors
	MinBackoff          time.Duration
	MaxBackoff          time.Duration
	FPSTimeout          time.Duration
	StatusInterval      time.Duration
	RecordingOutputPath string
	RelayMaxClients     int
	STUNServers         []string
	LogLevel            string
	LogColor            bool
	MetricsPath         string
}

// DefaultConfig returns a config that talks to a backend on the same host.
func DefaultConfig() Config {
	return Config{
		Addr:                ":8090",
		BackendURL:          "http://127.0.0.1:7878/api/v1",
		WrapperWidth:        960,
		JPEGQuality:         80,
		MinBackoff:          500 * time.Millisecond,
		MaxBackoff:          30 * time.Second,
		FPSTimeout:          2 * time.Second,
		StatusInterval:      2 * time.Second,
		RecordingOutputPath: "./recordings",
		RelayMaxClients:     10,
		STUNServers:         []string{"stun:stun.l.google.com:19302"},
		LogLevel:            "info",
		LogColor:            true,
		MetricsPath:         "/metrics",
	}
}

type fileConfig struct {
	Addr                *string            `toml:"addr"`
	BackendURL          *string            `toml:"backend_url"`
	WrapperWidth        *float64           `toml:"wrapper_width"`
	JPEGQuality         *int               `toml:"jpeg_quality"`
	Colors              render.StyleColors `toml:"colors"`
	MinBackoff          string             `toml:"min_backoff"`
	MaxBackoff          string             `toml:"max_backoff"`
	FPSTimeout          string             `toml:"fps_timeout"`
	StatusInterval      string             `toml:"status_interval"`
	RecordingOutputPath *string            `toml:"recording_output_path"`
	RelayMaxClients     *int               `toml:"relay_max_clients"`
	STUNServers         []string           `toml:"stun_servers"`
	LogLevel            *string            `toml:"log_level"`
	LogColor            *bool              `toml:"log_color"`
	MetricsPath         *string            `toml:"metrics_path"`
}

// Load reads the TOML file at path over DefaultConfig. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := raw.apply(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (f fileConfig) apply(cfg *Config) error {
	setString(&cfg.Addr, f.Addr)
	setString(&cfg.BackendURL, f.BackendURL)
	setString(&cfg.RecordingOutputPath, f.RecordingOutputPath)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.MetricsPath, f.MetricsPath)
	if f.WrapperWidth != nil {
		cfg.WrapperWidth = *f.WrapperWidth
	}
	if f.JPEGQuality != nil {
		cfg.JPEGQuality = *f.JPEGQuality
	}
	if f.RelayMaxClients != nil {
		cfg.RelayMaxClients = *f.RelayMaxClients
	}
	if f.LogColor != nil {
		cfg.LogColor = *f.LogColor
	}
	if f.STUNServers != nil {
		cfg.STUNServers = f.STUNServers
	}
	overlayColors(&cfg.Colors, f.Colors)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"min_backoff", f.MinBackoff, &cfg.MinBackoff},
		{"max_backoff", f.MaxBackoff, &cfg.MaxBackoff},
		{"fps_timeout", f.FPSTimeout, &cfg.FPSTimeout},
		{"status_interval", f.StatusInterval, &cfg.StatusInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func overlayColors(dst *render.StyleColors, src render.StyleColors) {
	for _, f := range []struct {
		src string
		dst *string
	}{
		{src.Background, &dst.Background},
		{src.Target, &dst.Target},
		{src.Guide, &dst.Guide},
		{src.Board, &dst.Board},
		{src.BoardLines, &dst.BoardLines},
		{src.Throw, &dst.Throw},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
}

// Validate checks ranges and parses the colors.
func (c Config) Validate() error {
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality %d outside [1, 100]", c.JPEGQuality)
	}
	if c.WrapperWidth <= 0 {
		return fmt.Errorf("wrapper_width must be positive")
	}
	if c.MinBackoff <= 0 || c.MaxBackoff < c.MinBackoff {
		return fmt.Errorf("backoff range %s..%s is invalid", c.MinBackoff, c.MaxBackoff)
	}
	if c.RelayMaxClients < 0 {
		return fmt.Errorf("relay_max_clients must not be negative")
	}
	if _, err := c.Colors.Resolve(); err != nil {
		return fmt.Errorf("colors: %w", err)
	}
	return nil
}

// Style resolves the configured colors over the default style.
func (c Config) Style() render.Style {
	style, err := c.Colors.Resolve()
	if err != nil {
		return render.DefaultStyle()
	}
	return style
}
