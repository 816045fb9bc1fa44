// Package config provides Viper-based configuration loading for the playerhub server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PLAYERHUB_SERVER_PORT
const EnvPrefix = "PLAYERHUB"

// Presence backends
const (
	PresenceBackendNone  = "none"
	PresenceBackendRedis = "redis"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "text".
	Format string `mapstructure:"format"`
}

// SlogLevel converts Level to a slog.Level. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PresenceConfig selects where broadcast events are mirrored.
type PresenceConfig struct {
	// Backend is "none" or "redis".
	Backend string `mapstructure:"backend"`
	// RedisURL is required when Backend is "redis".
	RedisURL string `mapstructure:"redis_url"`
	// Channel is the pub/sub channel events are published to.
	Channel string `mapstructure:"channel"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	// Enabled installs an SDK tracer provider that writes spans to stdout.
	Enabled bool `mapstructure:"enabled"`
	// SampleRatio is the fraction of traces kept, 0 to 1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Presence PresenceConfig `mapstructure:"presence"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// Validate checks all configuration invariants and reports every violation at once.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePresence(c.Presence); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be between 0 and 1, got %g", c.Tracing.SampleRatio))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, text], got %q", l.Format)
	}
	return nil
}

func validatePresence(p PresenceConfig) error {
	switch p.Backend {
	case PresenceBackendNone:
		return nil
	case PresenceBackendRedis:
		var errs []string
		if p.RedisURL == "" {
			errs = append(errs, "presence.redis_url must not be empty when presence.backend is redis")
		}
		if p.Channel == "" {
			errs = append(errs, "presence.channel must not be empty")
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	default:
		return fmt.Errorf("presence.backend must be one of [none, redis], got %q", p.Backend)
	}
}

// Load reads configuration from the given YAML file, applies environment
// variable overrides and validates the result. An empty path skips the file
// and uses defaults plus environment only.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg, err := LoadFromViper(defaultsOnly())
	if err != nil {
		// Defaults are static and always valid
		panic(err)
	}
	return cfg
}

func defaultsOnly() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// AutomaticEnv only sees keys viper already knows, so every key needs a default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("presence.backend", PresenceBackendNone)
	v.SetDefault("presence.redis_url", "")
	v.SetDefault("presence.channel", "playerhub:events")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}
