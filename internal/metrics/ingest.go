// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus instrumentation for the collector and
// the client pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "batches_received_total",
		Help:      "Total event batches received by the collector",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracelight",
		Name:      "batch_size_events",
		Help:      "Number of events per received batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
	})

	eventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "events_accepted_total",
		Help:      "Events accepted and persisted",
	})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "events_rejected_total",
		Help:      "Events rejected during validation",
	}, []string{"reason"})

	redactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "redactions_total",
		Help:      "Values masked by the redaction engine",
	}, []string{"rule"})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "sessions_started_total",
		Help:      "New sessions opened by the registry",
	})

	ingestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "ingest_errors_total",
		Help:      "Ingest requests that failed before persistence",
	}, []string{"reason"})
)

// ObserveBatch records a received batch and its size.
func ObserveBatch(events int) {
	batchesReceived.Inc()
	batchSize.Observe(float64(events))
}

// AddAccepted records persisted events.
func AddAccepted(n int) {
	eventsAccepted.Add(float64(n))
}

// AddRejected records rejected events with a reason label.
func AddRejected(reason string, n int) {
	eventsRejected.WithLabelValues(reason).Add(float64(n))
}

// AddRedactions records masked values. rule is "selector" or "field".
func AddRedactions(rule string, n int) {
	if n > 0 {
		redactions.WithLabelValues(rule).Add(float64(n))
	}
}

// SessionStarted records a newly opened session.
func SessionStarted() {
	sessionsStarted.Inc()
}

// IngestError records a failed ingest request.
func IngestError(reason string) {
	ingestErrors.WithLabelValues(reason).Inc()
}
