// Package config provides configuration file and environment support for hashtrail.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hashtrail-project/hashtrail/pkg/webhook"
)

// Config represents the hashtrail configuration.
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Limits      LimitsConfig    `yaml:"limits"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Monitor     MonitorConfig   `yaml:"monitor"`
	Webhooks    webhook.Config  `yaml:"webhooks"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LimitsConfig bounds request inputs.
type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	// FutureTolerance is how far a block timestamp may run ahead of the wall clock.
	FutureTolerance time.Duration `yaml:"future_tolerance"`
}

// MaxFileBytes returns the upload limit in bytes.
func (l LimitsConfig) MaxFileBytes() int64 {
	return int64(l.MaxFileSizeMB) << 20
}

// RateLimitConfig configures per-client limits on the recording endpoints.
type RateLimitConfig struct {
	Enabled   bool   `yaml:"enabled"`
	PerMinute int    `yaml:"per_minute"`
	Backend   string `yaml:"backend"` // memory, redis
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MonitorConfig configures periodic chain validation.
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the default configuration.
func Default() *Config {
	wh := webhook.DefaultConfig()
	wh.Enabled = false
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxFileSizeMB:   10,
			FutureTolerance: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 10,
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "hashtrail:ratelimit",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "hashtrail",
			SampleRatio: 1.0,
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
		Webhooks: *wh,
	}
}

// Load reads configuration from path and applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// envKeys maps deployment environment variables to config keys.
var envKeys = []struct{ env, key string }{
	{"ENVIRONMENT", "environment"},
	{"PORT", "server.port"},
	{"MAX_FILE_SIZE", "limits.max_file_size_mb"},
	{"RATE_LIMIT", "rate_limit.per_minute"},
	{"LOG_LEVEL", "logging.level"},
	{"REDIS_ADDR", "rate_limit.redis_addr"},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", "tracing.endpoint"},
}

// ApplyEnv overrides values from the environment using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, e := range envKeys {
		v, ok := lookup(e.env)
		if !ok || v == "" {
			continue
		}
		if err := c.Set(e.key, v); err != nil {
			return fmt.Errorf("env %s: %w", e.env, err)
		}
		switch e.env {
		case "REDIS_ADDR":
			c.RateLimit.Backend = "redis"
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			c.Tracing.Enabled = true
		}
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		return fmt.Errorf("limits.max_file_size_mb must be positive")
	}
	if c.Limits.FutureTolerance < 0 {
		return fmt.Errorf("limits.future_tolerance must not be negative")
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be positive")
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.backend %q must be memory or redis", c.RateLimit.Backend)
	}
	switch c.Logging.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging.level %q is not a level", c.Logging.Level)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	return nil
}

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func intField(p func(*Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid integer %q", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			*p(c) = b
			return nil
		},
	}
}

func durationField(p func(*Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration %q", v)
			}
			*p(c) = d
			return nil
		},
	}
}

var fields = map[string]field{
	"environment":             stringField(func(c *Config) *string { return &c.Environment }),
	"server.host":             stringField(func(c *Config) *string { return &c.Server.Host }),
	"server.port":             intField(func(c *Config) *int { return &c.Server.Port }),
	"limits.max_file_size_mb": intField(func(c *Config) *int { return &c.Limits.MaxFileSizeMB }),
	"limits.future_tolerance": durationField(func(c *Config) *time.Duration { return &c.Limits.FutureTolerance }),
	"rate_limit.enabled":      boolField(func(c *Config) *bool { return &c.RateLimit.Enabled }),
	"rate_limit.per_minute":   intField(func(c *Config) *int { return &c.RateLimit.PerMinute }),
	"rate_limit.backend":      stringField(func(c *Config) *string { return &c.RateLimit.Backend }),
	"rate_limit.redis_addr":   stringField(func(c *Config) *string { return &c.RateLimit.RedisAddr }),
	"logging.level":           stringField(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":          stringField(func(c *Config) *string { return &c.Logging.Format }),
	"logging.file":            stringField(func(c *Config) *string { return &c.Logging.File }),
	"metrics.enabled":         boolField(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"tracing.enabled":         boolField(func(c *Config) *bool { return &c.Tracing.Enabled }),
	"tracing.endpoint":        stringField(func(c *Config) *string { return &c.Tracing.Endpoint }),
	"monitor.enabled":         boolField(func(c *Config) *bool { return &c.Monitor.Enabled }),
	"monitor.interval":        durationField(func(c *Config) *time.Duration { return &c.Monitor.Interval }),
}

// Set assigns a value by dotted key.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	return f.set(c, value)
}

// Get returns a value by dotted key.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return f.get(c), nil
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
