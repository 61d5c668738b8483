// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration file shape. Zero values mean "not
// set" and leave the default in place.
type fileConfig struct {
	Listen  string `yaml:"listen"`
	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"metrics"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes"`
	WriteKeys    []string `yaml:"writeKeys"`
	Storage      struct {
		DataDir   string `yaml:"dataDir"`
		DBPath    string `yaml:"dbPath"`
		Retention string `yaml:"retention"` // Go duration, e.g. "720h"
	} `yaml:"storage"`
	Sessions struct {
		IdleTimeout string `yaml:"idleTimeout"` // Go duration, e.g. "30m"
		Backend     string `yaml:"backend"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"sessions"`
	RateLimit struct {
		Enabled *bool `yaml:"enabled"`
		RPM     int   `yaml:"rpm"`
	} `yaml:"rateLimit"`
	Redaction struct {
		RulesPath string `yaml:"rulesPath"`
	} `yaml:"redaction"`
	Log struct {
		Level   string `yaml:"level"`
		Service string `yaml:"service"`
	} `yaml:"log"`
	Tracing struct {
		Enabled  *bool   `yaml:"enabled"`
		Exporter string  `yaml:"exporter"`
		Endpoint string  `yaml:"endpoint"`
		Sampling float64 `yaml:"sampling"`
	} `yaml:"tracing"`
	Environment string `yaml:"environment"`
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc, nil
}

func applyFile(cfg *AppConfig, fc fileConfig) {
	setString(&cfg.ListenAddr, fc.Listen)
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
	setString(&cfg.MetricsAddr, fc.Metrics.Listen)
	if fc.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = fc.MaxBodyBytes
	}
	if len(fc.WriteKeys) > 0 {
		cfg.WriteKeys = fc.WriteKeys
	}
	setString(&cfg.DataDir, fc.Storage.DataDir)
	setString(&cfg.DBPath, fc.Storage.DBPath)
	setDuration(&cfg.RetentionAge, fc.Storage.Retention)
	setDuration(&cfg.SessionIdleTimeout, fc.Sessions.IdleTimeout)
	setString(&cfg.SessionBackend, fc.Sessions.Backend)
	setString(&cfg.RedisAddr, fc.Sessions.Redis.Addr)
	setString(&cfg.RedisPassword, fc.Sessions.Redis.Password)
	if fc.Sessions.Redis.DB != 0 {
		cfg.RedisDB = fc.Sessions.Redis.DB
	}
	if fc.RateLimit.Enabled != nil {
		cfg.RateLimitEnabled = *fc.RateLimit.Enabled
	}
	if fc.RateLimit.RPM > 0 {
		cfg.RateLimitRPM = fc.RateLimit.RPM
	}
	setString(&cfg.RulesPath, fc.Redaction.RulesPath)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogService, fc.Log.Service)
	if fc.Tracing.Enabled != nil {
		cfg.TracingEnabled = *fc.Tracing.Enabled
	}
	setString(&cfg.TracingExporter, fc.Tracing.Exporter)
	setString(&cfg.TracingEndpoint, fc.Tracing.Endpoint)
	if fc.Tracing.Sampling > 0 {
		cfg.TracingSampling = fc.Tracing.Sampling
	}
	setString(&cfg.Environment, fc.Environment)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
