// Package config holds the driver configuration: timing knobs, retry
// caps, logging, and the optional fridge frame layout override.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mattxcnm/goalzero-ble/internal/decode"
	"github.com/mattxcnm/goalzero-ble/internal/protocol"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// Duration parses human-friendly values like "20s" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// ScanConfig controls device discovery.
type ScanConfig struct {
	Passes      int      `yaml:"passes" default:"2"`
	PassTimeout Duration `yaml:"pass_timeout"`
	RetryDelay  Duration `yaml:"retry_delay"`
}

// ConnectConfig controls connection establishment and retry.
type ConnectConfig struct {
	Attempts         int      `yaml:"attempts" default:"2"`
	AttemptTimeout   Duration `yaml:"attempt_timeout"`
	EstablishBackoff Duration `yaml:"establish_backoff"`
	TimeoutBackoff   Duration `yaml:"timeout_backoff"`
	SettleDelay      Duration `yaml:"settle_delay"`
}

// SessionConfig controls per-command response timing.
type SessionConfig struct {
	Attempts          int      `yaml:"attempts" default:"3"`
	FirstChunkTimeout Duration `yaml:"first_chunk_timeout"`
	CollectTimeout    Duration `yaml:"collect_timeout"`
	RetryDelay        Duration `yaml:"retry_delay"`
}

// Alta80Config carries fridge-specific overrides. Table replaces the
// built-in frame layout, which is how offset corrections for new
// firmware ship without a rebuild.
type Alta80Config struct {
	Table *decode.BinaryTable `yaml:"table"`
}

// Config is the full driver configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	PollInterval Duration      `yaml:"poll_interval"`
	Scan         ScanConfig    `yaml:"scan"`
	Connect      ConnectConfig `yaml:"connect"`
	Session      SessionConfig `yaml:"session"`
	Alta80       Alta80Config  `yaml:"alta80"`
}

// DefaultConfig returns the configuration matching the timing the
// appliances are known to tolerate.
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	c.fillDurations()
	return c
}

// fillDurations backfills zero durations. go-defaults cannot populate
// the Duration type from struct tags, so the defaults live here.
func (c *Config) fillDurations() {
	t := transport.DefaultOptions()
	s := protocol.DefaultOptions()
	fill := func(d *Duration, v time.Duration) {
		if *d <= 0 {
			*d = Duration(v)
		}
	}
	fill(&c.PollInterval, 30*time.Second)
	fill(&c.Scan.PassTimeout, t.ScanPassTimeout)
	fill(&c.Scan.RetryDelay, t.ScanRetryDelay)
	fill(&c.Connect.AttemptTimeout, t.DialTimeout)
	fill(&c.Connect.EstablishBackoff, t.EstablishBackoff)
	fill(&c.Connect.TimeoutBackoff, t.TimeoutBackoff)
	fill(&c.Connect.SettleDelay, t.SettleDelay)
	fill(&c.Session.FirstChunkTimeout, s.FirstChunkTimeout)
	fill(&c.Session.CollectTimeout, s.CollectTimeout)
	fill(&c.Session.RetryDelay, s.RetryDelay)
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillDurations()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects values the lower layers would trip over.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Scan.Passes <= 0 {
		return fmt.Errorf("scan.passes must be positive, got %d", c.Scan.Passes)
	}
	if c.Connect.Attempts <= 0 {
		return fmt.Errorf("connect.attempts must be positive, got %d", c.Connect.Attempts)
	}
	if c.Session.Attempts <= 0 {
		return fmt.Errorf("session.attempts must be positive, got %d", c.Session.Attempts)
	}
	if c.Alta80.Table != nil {
		if err := c.Alta80.Table.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// TransportOptions maps the config onto the connection manager knobs.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		ScanPasses:       c.Scan.Passes,
		ScanPassTimeout:  c.Scan.PassTimeout.Std(),
		ScanRetryDelay:   c.Scan.RetryDelay.Std(),
		DialTimeout:      c.Connect.AttemptTimeout.Std(),
		ConnectAttempts:  c.Connect.Attempts,
		EstablishBackoff: c.Connect.EstablishBackoff.Std(),
		TimeoutBackoff:   c.Connect.TimeoutBackoff.Std(),
		SettleDelay:      c.Connect.SettleDelay.Std(),
	}
}

// SessionOptions maps the config onto the protocol session knobs.
func (c *Config) SessionOptions() protocol.Options {
	return protocol.Options{
		FirstChunkTimeout: c.Session.FirstChunkTimeout.Std(),
		CollectTimeout:    c.Session.CollectTimeout.Std(),
		Attempts:          c.Session.Attempts,
		RetryDelay:        c.Session.RetryDelay.Std(),
	}
}
