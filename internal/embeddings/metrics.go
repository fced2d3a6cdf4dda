package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/vantagekit/vectorsync/internal/embeddings"

// serviceMetrics mirrors embedding generation activity to OpenTelemetry.
type serviceMetrics struct {
	logger *zap.Logger

	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	cacheHits metric.Int64Counter
	cacheMiss metric.Int64Counter
	fallbacks metric.Int64Counter
	errors    metric.Int64Counter
}

func newServiceMetrics(logger *zap.Logger) *serviceMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &serviceMetrics{logger: logger}
	meter := otel.Meter(instrumentationName)
	var err error

	m.duration, err = meter.Float64Histogram(
		"vectorsync.embeddings.duration_seconds",
		metric.WithDescription("Duration of embedding generation in seconds, labeled by source (cache, provider, fallback)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = meter.Int64Histogram(
		"vectorsync.embeddings.batch_size",
		metric.WithDescription("Number of texts per GenerateBatch call."),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.cacheHits, err = meter.Int64Counter(
		"vectorsync.embeddings.cache_hits_total",
		metric.WithDescription("Embedding requests served from the cache."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache hits counter", zap.Error(err))
	}

	m.cacheMiss, err = meter.Int64Counter(
		"vectorsync.embeddings.cache_misses_total",
		metric.WithDescription("Embedding requests that missed the cache and went to the provider."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache misses counter", zap.Error(err))
	}

	m.fallbacks, err = meter.Int64Counter(
		"vectorsync.embeddings.fallbacks_total",
		metric.WithDescription("Embeddings served by the deterministic fallback after the provider path was exhausted."),
		metric.WithUnit("{embedding}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"vectorsync.embeddings.errors_total",
		metric.WithDescription("Embedding requests that failed without a fallback."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	return m
}

func (m *serviceMetrics) recordDuration(ctx context.Context, source string, d time.Duration) {
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("source", source)))
	}
}

func (m *serviceMetrics) recordBatch(ctx context.Context, size int) {
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(size))
	}
}

func (m *serviceMetrics) recordHits(ctx context.Context, n int64) {
	if m.cacheHits != nil && n > 0 {
		m.cacheHits.Add(ctx, n)
	}
}

func (m *serviceMetrics) recordMisses(ctx context.Context, n int64) {
	if m.cacheMiss != nil && n > 0 {
		m.cacheMiss.Add(ctx, n)
	}
}

func (m *serviceMetrics) recordFallbacks(ctx context.Context, n int64) {
	if m.fallbacks != nil && n > 0 {
		m.fallbacks.Add(ctx, n)
	}
}

func (m *serviceMetrics) recordError(ctx context.Context) {
	if m.errors != nil {
		m.errors.Add(ctx, 1)
	}
}
