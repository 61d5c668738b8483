// SPDX-License-Identifier: MIT

// Package config loads collector configuration with precedence
// ENV > file > defaults. All environment variables use the TRACELIGHT_
// prefix.
package config

import (
	"fmt"
	"net"
	"time"
)

// AppConfig is the loaded collector configuration.
type AppConfig struct {
	// HTTP
	ListenAddr     string
	MetricsEnabled bool
	MetricsAddr    string
	MaxBodyBytes   int64

	// Auth
	WriteKeys []string

	// Storage
	DataDir      string
	DBPath       string
	RetentionAge time.Duration

	// Sessions
	SessionIdleTimeout time.Duration
	SessionBackend     string // "memory" or "redis"
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int

	// Redaction
	RulesPath string

	// Logging
	LogLevel   string
	LogService string

	// Tracing
	TracingEnabled  bool
	TracingExporter string
	TracingEndpoint string
	TracingSampling float64
	Environment     string

	Version string
}

// Defaults returns the baseline configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:         ":8080",
		MetricsEnabled:     true,
		MetricsAddr:        "",
		MaxBodyBytes:       1 << 20, // 1 MiB per batch
		DataDir:            "/var/lib/tracelight",
		RetentionAge:       30 * 24 * time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		SessionBackend:     "memory",
		RedisAddr:          "localhost:6379",
		RateLimitEnabled:   true,
		RateLimitRPM:       600,
		LogLevel:           "info",
		LogService:         "tracelight",
		TracingExporter:    "grpc",
		TracingSampling:    0.1,
		Environment:        "production",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides.
func Load(path, version string) (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = version

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		applyFile(&cfg, fileCfg)
	}

	applyEnv(&cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataDir + "/events.db"
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("TRACELIGHT_LISTEN", cfg.ListenAddr)
	cfg.MetricsEnabled = ParseBool("TRACELIGHT_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("TRACELIGHT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.MaxBodyBytes = int64(ParseInt("TRACELIGHT_MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.WriteKeys = ParseStringList("TRACELIGHT_WRITE_KEYS", cfg.WriteKeys)
	cfg.DataDir = ParseString("TRACELIGHT_DATA", cfg.DataDir)
	cfg.DBPath = ParseString("TRACELIGHT_DB_PATH", cfg.DBPath)
	cfg.RetentionAge = ParseDuration("TRACELIGHT_RETENTION_AGE", cfg.RetentionAge)
	cfg.SessionIdleTimeout = ParseDuration("TRACELIGHT_SESSION_IDLE", cfg.SessionIdleTimeout)
	cfg.SessionBackend = ParseString("TRACELIGHT_SESSION_BACKEND", cfg.SessionBackend)
	cfg.RedisAddr = ParseString("TRACELIGHT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("TRACELIGHT_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("TRACELIGHT_REDIS_DB", cfg.RedisDB)
	cfg.RateLimitEnabled = ParseBool("TRACELIGHT_RATELIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = ParseInt("TRACELIGHT_RATELIMIT_RPM", cfg.RateLimitRPM)
	cfg.RulesPath = ParseString("TRACELIGHT_RULES_PATH", cfg.RulesPath)
	cfg.LogLevel = ParseString("TRACELIGHT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("TRACELIGHT_LOG_SERVICE", cfg.LogService)
	cfg.TracingEnabled = ParseBool("TRACELIGHT_TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TracingExporter = ParseString("TRACELIGHT_TRACING_EXPORTER", cfg.TracingExporter)
	cfg.TracingEndpoint = ParseString("TRACELIGHT_TRACING_ENDPOINT", cfg.TracingEndpoint)
	cfg.TracingSampling = ParseFloat("TRACELIGHT_TRACING_SAMPLING", cfg.TracingSampling)
	cfg.Environment = ParseString("TRACELIGHT_ENVIRONMENT", cfg.Environment)
}

// Validate fails fast on configuration the collector cannot run with.
func Validate(cfg AppConfig) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("config: invalid listen address %q: %w", cfg.ListenAddr, err)
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("config: invalid metrics address %q: %w", cfg.MetricsAddr, err)
		}
	}
	if len(cfg.WriteKeys) == 0 {
		return fmt.Errorf("config: at least one write key is required (TRACELIGHT_WRITE_KEYS)")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return fmt.Errorf("config: session idle timeout must be positive")
	}
	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session backend %q (supported: memory, redis)", cfg.SessionBackend)
	}
	if cfg.SessionBackend == "redis" && cfg.RedisAddr == "" {
		return fmt.Errorf("config: redis session backend requires TRACELIGHT_REDIS_ADDR")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max body bytes must be positive")
	}
	if cfg.TracingEnabled && cfg.TracingEndpoint == "" {
		return fmt.Errorf("config: tracing enabled but TRACELIGHT_TRACING_ENDPOINT is empty")
	}
	return nil
}
