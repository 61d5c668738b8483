// SPDX-License-Identifier: MIT

package tracker

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultFlushInterval   = 5 * time.Second
	DefaultBatchSize       = 50
	DefaultQueueSize       = 1000
	DefaultMaxRetries      = 3
	DefaultSessionIdle     = 30 * time.Minute
	DefaultSpoolMaxBatches = 512
	DefaultRequestTimeout  = 10 * time.Second
)

// Options configures a Tracker.
type Options struct {
	// Endpoint is the collector base URL. Required.
	Endpoint string

	// WriteKey authenticates batches against the collector. Required.
	WriteKey string

	// FlushInterval is the maximum time an event waits before delivery.
	FlushInterval time.Duration

	// BatchSize is the maximum number of events per delivery.
	BatchSize int

	// QueueSize bounds the in-memory event queue. When the queue is full
	// new events are dropped and counted, never blocking the caller.
	QueueSize int

	// MaxRetries bounds delivery retries per batch before spooling.
	MaxRetries int

	// DeliveryRPS throttles delivery requests per second. Zero disables
	// pacing.
	DeliveryRPS float64

	// SessionIdleTimeout is the inactivity window after which a new
	// session begins. Defaults to 30 minutes.
	SessionIdleTimeout time.Duration

	// StatePath is the file the session state persists to, so a session
	// survives process restarts within the idle window. Empty keeps the
	// session in memory only.
	StatePath string

	// SpoolDir enables the on-disk spool for undeliverable batches.
	// Empty disables spooling (failed batches are dropped).
	SpoolDir string

	// SpoolMaxBatches caps the spool; the oldest batch is evicted first.
	SpoolMaxBatches int

	// RedactSelectors is the initial CSS selector redaction list.
	RedactSelectors []string

	// RedactFields is the initial redacted property-name list.
	RedactFields []string

	// LogLevel overrides the tracker's log level ("debug", "info",
	// "warn", "error"). Empty inherits the global level.
	LogLevel string

	// HTTPClient overrides the delivery client. Mainly for tests.
	HTTPClient *http.Client
}

var (
	ErrNoEndpoint = errors.New("tracker: endpoint is required")
	ErrNoWriteKey = errors.New("tracker: write key is required")
)

func (o Options) validate() error {
	if o.Endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("tracker: invalid endpoint %q", o.Endpoint)
	}
	if o.WriteKey == "" {
		return ErrNoWriteKey
	}
	if o.BatchSize < 0 || o.QueueSize < 0 || o.MaxRetries < 0 {
		return fmt.Errorf("tracker: negative sizing option")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.SessionIdleTimeout <= 0 {
		o.SessionIdleTimeout = DefaultSessionIdle
	}
	if o.SpoolMaxBatches <= 0 {
		o.SpoolMaxBatches = DefaultSpoolMaxBatches
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return o
}
