// SPDX-License-Identifier: MIT

// Package api implements the collector's HTTP surface: batch ingestion,
// session lookup and operational endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/internal/api/middleware"
	"github.com/tracelight/tracelight/internal/config"
	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/redact"
	"github.com/tracelight/tracelight/internal/session"
	"github.com/tracelight/tracelight/internal/store"
)

// Server is the collector HTTP API.
type Server struct {
	cfg       config.AppConfig
	registry  session.Registry
	store     store.Store
	rules     *redact.Holder
	startTime time.Time
	log       zerolog.Logger
}

// New wires the API server. rules may be nil when no server-side
// redaction is configured.
func New(cfg config.AppConfig, registry session.Registry, st store.Store, rules *redact.Holder) *Server {
	if rules == nil {
		rules = redact.NewHolder(nil)
	}
	return &Server{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		rules:     rules,
		startTime: time.Now(),
		log:       log.WithComponent("api"),
	}
}

// Handler builds the routed handler with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:    true,
		TracingService:   s.tracingService(),
		EnableLogging:    true,
		RateLimitEnabled: s.cfg.RateLimitEnabled,
		RateLimitRPM:     s.cfg.RateLimitRPM,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireWriteKey)
		r.Post("/batch", s.handleBatch)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
	})

	return r
}

func (s *Server) tracingService() string {
	if !s.cfg.TracingEnabled {
		return ""
	}
	return s.cfg.LogService
}
