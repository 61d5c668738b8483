// SPDX-License-Identifier: MIT

// Package daemon manages the collector's process lifecycle: serving HTTP,
// running background sweeps, and shutting everything down in order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Deps carries everything the manager serves.
type Deps struct {
	Logger         zerolog.Logger
	APIHandler     http.Handler
	ListenAddr     string
	MetricsHandler http.Handler
	MetricsAddr    string // empty disables the metrics listener
}

// Validate checks required dependencies.
func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return errors.New("daemon: APIHandler is required")
	}
	if d.ListenAddr == "" {
		return errors.New("daemon: ListenAddr is required")
	}
	return nil
}

const shutdownTimeout = 15 * time.Second

// Manager runs the HTTP servers and owns shutdown ordering.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	hooks []namedHook

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a manager from validated dependencies.
func NewManager(deps Deps) (*Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &Manager{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// RegisterShutdownHook adds a named cleanup step.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Run serves until ctx is cancelled, then shuts down gracefully. It
// returns the first server error, if any.
func (m *Manager) Run(ctx context.Context) error {
	apiServer := &http.Server{
		Addr:              m.deps.ListenAddr,
		Handler:           m.deps.APIHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if m.deps.MetricsAddr != "" && m.deps.MetricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.deps.MetricsHandler)
		metricsServer = &http.Server{
			Addr:              m.deps.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.logger.Info().Str("addr", apiServer.Addr).Msg("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			m.logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		m.logger.Info().Msg("shutting down")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			m.logger.Warn().Err(err).Msg("api server shutdown incomplete")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				m.logger.Warn().Err(err).Msg("metrics server shutdown incomplete")
			}
		}
		m.runHooks(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// runHooks executes shutdown hooks LIFO; a failing hook is logged, not
// fatal, so later cleanup still runs.
func (m *Manager) runHooks(ctx context.Context) {
	m.mu.Lock()
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.hook(ctx); err != nil {
			m.logger.Warn().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
		} else {
			m.logger.Debug().Str("hook", h.name).Msg("shutdown hook completed")
		}
	}
}
