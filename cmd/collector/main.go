// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracelight/tracelight/internal/api"
	"github.com/tracelight/tracelight/internal/config"
	"github.com/tracelight/tracelight/internal/daemon"
	tllog "github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/redact"
	"github.com/tracelight/tracelight/internal/session"
	"github.com/tracelight/tracelight/internal/store"
	"github.com/tracelight/tracelight/internal/store/sqlite"
	"github.com/tracelight/tracelight/internal/telemetry"
)

var (
	version   = "v0.4.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	tllog.Configure(tllog.Config{
		Level:   "info",
		Service: "tracelight",
		Version: version,
	})
	logger := tllog.WithComponent("collector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise ${TRACELIGHT_DATA}/config.yaml
	// when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("TRACELIGHT_DATA", "/var/lib/tracelight"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.Load(effectivePath, version)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	// Re-configure with the loaded settings.
	tllog.Configure(tllog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})

	if err := config.Validate(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DataDir).Msg("cannot create data directory")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("addr", cfg.ListenAddr).
		Msg("starting tracelight collector")
	logger.Info().Msgf("→ Event store: %s", cfg.DBPath)
	logger.Info().Msgf("→ Session backend: %s (idle window %s)", cfg.SessionBackend, cfg.SessionIdleTimeout)
	logger.Info().Msgf("→ Write keys: %d configured", len(cfg.WriteKeys))
	if cfg.RulesPath != "" {
		logger.Info().Msgf("→ Redaction rules: %s", cfg.RulesPath)
	}

	// Tracing.
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampling,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	// Event store.
	eventStore, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open event store")
	}

	// Session registry.
	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize session registry")
	}

	// Redaction rules with hot reload.
	holder := redact.NewHolder(nil)
	if cfg.RulesPath != "" {
		rules, err := config.LoadRules(cfg.RulesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RulesPath).Msg("failed to load redaction rules")
		}
		holder.Swap(rules)
	}
	watcher := config.NewRulesWatcher(cfg.RulesPath, holder)
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start rules watcher")
	}

	server := api.New(cfg, registry, eventStore, holder)

	metricsAddr := ""
	if cfg.MetricsEnabled {
		metricsAddr = strings.TrimSpace(cfg.MetricsAddr)
		if metricsAddr == "" {
			metricsAddr = ":9090"
		}
	}

	mgr, err := daemon.NewManager(daemon.Deps{
		Logger:         logger,
		APIHandler:     server.Handler(),
		ListenAddr:     cfg.ListenAddr,
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    metricsAddr,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create daemon manager")
	}

	mgr.RegisterShutdownHook("tracing", tp.Shutdown)
	mgr.RegisterShutdownHook("event-store", func(context.Context) error { return eventStore.Close() })
	mgr.RegisterShutdownHook("session-registry", func(context.Context) error { return registry.Close() })

	go retentionLoop(ctx, eventStore, cfg.RetentionAge)

	if err := mgr.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("collector failed")
	}
	logger.Info().Msg("collector exiting")
}

func buildRegistry(cfg config.AppConfig) (session.Registry, error) {
	sessCfg := session.Config{IdleTimeout: cfg.SessionIdleTimeout}
	if cfg.SessionBackend == "redis" {
		return session.NewRedis(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, sessCfg, tllog.WithComponent("session"))
	}
	return session.NewMemory(sessCfg), nil
}

// retentionLoop periodically deletes events past the retention age.
func retentionLoop(ctx context.Context, st store.Store, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	logger := tllog.WithComponent("retention")
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-maxAge)
			n, err := st.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logger.Warn().Err(err).Msg("retention sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("retention sweep completed")
			}
		}
	}
}
