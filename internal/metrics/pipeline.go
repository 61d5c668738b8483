// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "delivery_attempts_total",
		Help:      "Batch delivery attempts by the client pipeline",
	}, []string{"result"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracelight",
		Name:      "delivery_duration_seconds",
		Help:      "Duration of batch delivery attempts",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2.0, 12), // 10ms .. ~20s
	})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelight",
		Name:      "client_events_dropped_total",
		Help:      "Events dropped by the client pipeline without delivery",
	}, []string{"reason"})

	spoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracelight",
		Name:      "spool_depth_batches",
		Help:      "Batches currently held in the offline spool",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracelight",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// DeliveryAttempt records one delivery attempt. result is "ok", "retry",
// "drop" or "spool".
func DeliveryAttempt(result string) {
	deliveryAttempts.WithLabelValues(result).Inc()
}

// ObserveDelivery records the duration of one delivery attempt.
func ObserveDelivery(seconds float64) {
	deliveryDuration.Observe(seconds)
}

// EventsDropped records events lost without delivery. reason is
// "queue_full" or "delivery_failed".
func EventsDropped(reason string, n int) {
	eventsDropped.WithLabelValues(reason).Add(float64(n))
}

// SetSpoolDepth updates the spool depth gauge.
func SetSpoolDepth(n int) {
	spoolDepth.Set(float64(n))
}

// SetCircuitBreakerState updates the breaker state gauge for name.
func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}
