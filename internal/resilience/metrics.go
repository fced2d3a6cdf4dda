package resilience

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/vantagekit/vectorsync/internal/resilience"

// OperationMetrics is a point-in-time snapshot of counters for one operation type.
type OperationMetrics struct {
	Total          int64
	Success        int64
	Failure        int64
	AverageLatency time.Duration
}

type opStats struct {
	total      int64
	success    int64
	failure    int64
	avgLatency time.Duration
}

// Metrics tracks per-operation counters and rolling average latency, and
// mirrors observations to OpenTelemetry instruments.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	attempts metric.Int64Histogram
	failures metric.Int64Counter

	mu    sync.Mutex
	stats map[Operation]*opStats
}

// NewMetrics creates a Metrics instance.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
		stats:  make(map[Operation]*opStats),
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"vectorsync.operation.duration_seconds",
		metric.WithDescription("End-to-end duration of resilient operations in seconds, including retries, labeled by operation type and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.attempts, err = m.meter.Int64Histogram(
		"vectorsync.operation.attempts",
		metric.WithDescription("Attempts per resilient operation. Values above 1 indicate retries; sustained high values point at a degraded dependency."),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		m.logger.Warn("failed to create attempts histogram", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"vectorsync.operation.failures_total",
		metric.WithDescription("Total operations that failed after exhausting retries, labeled by operation type."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create failures counter", zap.Error(err))
	}
}

// Record records one completed operation.
func (m *Metrics) Record(ctx context.Context, op Operation, duration time.Duration, attempts int, err error) {
	m.mu.Lock()
	s, ok := m.stats[op]
	if !ok {
		s = &opStats{}
		m.stats[op] = s
	}
	s.total++
	if err != nil {
		s.failure++
	} else {
		s.success++
	}
	// Rolling average over all completed operations of this type.
	s.avgLatency += (duration - s.avgLatency) / time.Duration(s.total)
	m.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", string(op)),
		attribute.String("outcome", outcome),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.attempts != nil {
		m.attempts.Record(ctx, int64(attempts), metric.WithAttributes(attrs...))
	}
	if err != nil && m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))
	}
}

// Snapshot returns current counters for one operation type.
func (m *Metrics) Snapshot(op Operation) OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[op]
	if !ok {
		return OperationMetrics{}
	}
	return OperationMetrics{
		Total:          s.total,
		Success:        s.success,
		Failure:        s.failure,
		AverageLatency: s.avgLatency,
	}
}

// SnapshotAll returns counters for every operation type seen so far.
func (m *Metrics) SnapshotAll() map[Operation]OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Operation]OperationMetrics, len(m.stats))
	for op, s := range m.stats {
		out[op] = OperationMetrics{
			Total:          s.total,
			Success:        s.success,
			Failure:        s.failure,
			AverageLatency: s.avgLatency,
		}
	}
	return out
}
