// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var valid = validator.New()

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Collection CollectionConfig `yaml:"collection"`
	Backoff    BackoffConfig    `yaml:"backoff"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds collector connection settings.
type ServerConfig struct {
	URL              string   `yaml:"url" validate:"required,url"`
	Token            string   `yaml:"token"`
	Encoding         string   `yaml:"encoding" validate:"omitempty,oneof=cbor json"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
}

// CollectionConfig holds sampling settings.
type CollectionConfig struct {
	Interval       Duration `yaml:"interval"`
	ProbeTimeout   Duration `yaml:"probe_timeout"`
	MaxConcurrency int      `yaml:"max_concurrency" validate:"gte=1"`
	TopProcesses   int      `yaml:"top_processes" validate:"gte=1"`
}

// BackoffConfig holds reconnect delays. The server_* pair applies to 5xx and
// 429 handshake responses.
type BackoffConfig struct {
	BaseDelay       Duration `yaml:"base_delay"`
	MaxDelay        Duration `yaml:"max_delay"`
	ServerBaseDelay Duration `yaml:"server_base_delay"`
	ServerMaxDelay  Duration `yaml:"server_max_delay"`
	Multiplier      float64  `yaml:"multiplier" validate:"gte=1"`
	Jitter          float64  `yaml:"jitter" validate:"gte=0,lte=1"`
}

// BufferConfig holds report queue and spool settings.
type BufferConfig struct {
	Capacity                 int    `yaml:"capacity" validate:"gte=1"`
	SpoolDir                 string `yaml:"spool_dir"`
	MaxSerializationFailures int    `yaml:"max_serialization_failures" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level        string   `yaml:"level" validate:"oneof=debug info warn error"`
	File         string   `yaml:"file"`
	MaxAge       Duration `yaml:"max_age"`
	RotationTime Duration `yaml:"rotation_time"`
}

// MetricsConfig holds the Prometheus listener settings. An empty Listen
// disables the listener.
type MetricsConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:              "ws://localhost:8080/agent",
			Encoding:         "cbor",
			HandshakeTimeout: Duration{10 * time.Second},
			WriteTimeout:     Duration{10 * time.Second},
		},
		Collection: CollectionConfig{
			Interval:       Duration{5 * time.Second},
			ProbeTimeout:   Duration{5 * time.Second},
			MaxConcurrency: 8,
			TopProcesses:   5,
		},
		Backoff: BackoffConfig{
			BaseDelay:       Duration{2 * time.Second},
			MaxDelay:        Duration{30 * time.Second},
			ServerBaseDelay: Duration{5 * time.Second},
			ServerMaxDelay:  Duration{2 * time.Minute},
			Multiplier:      2,
			Jitter:          0.1,
		},
		Buffer: BufferConfig{
			Capacity:                 10,
			MaxSerializationFailures: 10,
		},
		Logging: LoggingConfig{
			Level:        "info",
			File:         "./agent.log",
			MaxAge:       Duration{7 * 24 * time.Hour},
			RotationTime: Duration{24 * time.Hour},
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	URL   string
	Token string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars (.env included) > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// A missing .env is normal; variables already set in the environment win.
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if cli.URL != "" {
		cfg.Server.URL = cli.URL
	}
	if cli.Token != "" {
		cfg.Server.Token = cli.Token
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HP_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("HP_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("HP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("HP_ENCODING"); v != "" {
		cfg.Server.Encoding = strings.ToLower(v)
	}
}

// Validate checks that the configuration is usable. Plaintext ws:// is only
// accepted for localhost.
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "wss":
	case "ws":
		if host := u.Hostname(); host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("server URL must use wss (got: %s)", c.Server.URL)
		}
	default:
		return fmt.Errorf("server URL scheme must be ws or wss (got: %s)", u.Scheme)
	}

	positive := []struct {
		name string
		d    Duration
	}{
		{"server.handshake_timeout", c.Server.HandshakeTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"collection.interval", c.Collection.Interval},
		{"collection.probe_timeout", c.Collection.ProbeTimeout},
		{"backoff.base_delay", c.Backoff.BaseDelay},
		{"backoff.server_base_delay", c.Backoff.ServerBaseDelay},
	}
	for _, p := range positive {
		if p.d.Duration <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if c.Backoff.MaxDelay.Duration < c.Backoff.BaseDelay.Duration {
		return fmt.Errorf("backoff.max_delay (%s) is below backoff.base_delay (%s)",
			c.Backoff.MaxDelay, c.Backoff.BaseDelay)
	}
	if c.Backoff.ServerMaxDelay.Duration < c.Backoff.ServerBaseDelay.Duration {
		return fmt.Errorf("backoff.server_max_delay (%s) is below backoff.server_base_delay (%s)",
			c.Backoff.ServerMaxDelay, c.Backoff.ServerBaseDelay)
	}
	return nil
}
