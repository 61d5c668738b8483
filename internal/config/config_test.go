// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "v1.2.3")
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v1.2.3"
	want.DBPath = want.DataDir + "/events.db"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileMerge(t *testing.T) {
	path := writeTempFile(t, "config.yaml", `
listen: ":9999"
writeKeys:
  - wk_file
storage:
  dataDir: /tmp/tl
  retention: 168h
sessions:
  idleTimeout: 15m
  backend: redis
  redis:
    addr: redis:6379
rateLimit:
  enabled: false
log:
  level: debug
`)

	cfg, err := Load(path, "dev")
	require.NoError(t, err)

	want := Defaults()
	want.Version = "dev"
	want.ListenAddr = ":9999"
	want.WriteKeys = []string{"wk_file"}
	want.DataDir = "/tmp/tl"
	want.DBPath = "/tmp/tl/events.db"
	want.RetentionAge = 168 * time.Hour
	want.SessionIdleTimeout = 15 * time.Minute
	want.SessionBackend = "redis"
	want.RedisAddr = "redis:6379"
	want.RateLimitEnabled = false
	want.LogLevel = "debug"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeTempFile(t, "config.yaml", `
listen: ":9999"
sessions:
  idleTimeout: 15m
`)
	t.Setenv("TRACELIGHT_LISTEN", ":7070")
	t.Setenv("TRACELIGHT_SESSION_IDLE", "45m")
	t.Setenv("TRACELIGHT_WRITE_KEYS", "wk_a, wk_b")

	cfg, err := Load(path, "dev")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 45*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, []string{"wk_a", "wk_b"}, cfg.WriteKeys)
}

func TestLoadBadFile(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "listen: [not: closed")
	_, err := Load(path, "dev")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "dev")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.WriteKeys = []string{"wk"}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "bad listen", mutate: func(c *AppConfig) { c.ListenAddr = "nope" }, wantErr: true},
		{name: "bad metrics addr", mutate: func(c *AppConfig) { c.MetricsAddr = "nope" }, wantErr: true},
		{name: "no write keys", mutate: func(c *AppConfig) { c.WriteKeys = nil }, wantErr: true},
		{name: "zero idle timeout", mutate: func(c *AppConfig) { c.SessionIdleTimeout = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *AppConfig) { c.SessionBackend = "etcd" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *AppConfig) {
			c.SessionBackend = "redis"
			c.RedisAddr = ""
		}, wantErr: true},
		{name: "zero body limit", mutate: func(c *AppConfig) { c.MaxBodyBytes = 0 }, wantErr: true},
		{name: "tracing without endpoint", mutate: func(c *AppConfig) { c.TracingEnabled = true }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
