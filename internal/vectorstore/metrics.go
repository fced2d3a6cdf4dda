// Package vectorstore provides Prometheus metrics for health monitoring.
package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// healthCheckDuration tracks how long store health checks take.
	healthCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vectorsync",
			Subsystem: "vectorstore",
			Name:      "health_check_duration_seconds",
			Help:      "Duration of vector store health checks in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// healthCheckTotal counts health check operations.
	// Labels: result (success, error)
	healthCheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectorsync",
			Subsystem: "vectorstore",
			Name:      "health_checks_total",
			Help:      "Total number of vector store health checks",
		},
		[]string{"result"},
	)

	// healthStatus indicates current health status (1=healthy, 0=degraded).
	healthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vectorsync",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Current vector store health status (1=healthy, 0=degraded)",
		},
	)
)

// recordHealthCheck updates the health metrics after a check.
func recordHealthCheck(success bool, duration time.Duration) {
	healthCheckDuration.Observe(duration.Seconds())
	if success {
		healthCheckTotal.WithLabelValues("success").Inc()
		healthStatus.Set(1)
	} else {
		healthCheckTotal.WithLabelValues("error").Inc()
		healthStatus.Set(0)
	}
}
