package usage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/vantagekit/vectorsync/internal/usage"

type trackerMetrics struct {
	logger *zap.Logger

	tokens     metric.Int64Counter
	cost       metric.Float64Counter
	rejections metric.Int64Counter
	alerts     metric.Int64Counter
}

func newTrackerMetrics(logger *zap.Logger) *trackerMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &trackerMetrics{logger: logger}
	meter := otel.Meter(instrumentationName)
	var err error

	m.tokens, err = meter.Int64Counter(
		"vectorsync.usage.tokens_total",
		metric.WithDescription("Accepted tokens, labeled by provider."),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		m.logger.Warn("failed to create tokens counter", zap.Error(err))
	}

	m.cost, err = meter.Float64Counter(
		"vectorsync.usage.cost_usd_total",
		metric.WithDescription("Accepted spend in USD, labeled by provider."),
		metric.WithUnit("{usd}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cost counter", zap.Error(err))
	}

	m.rejections, err = meter.Int64Counter(
		"vectorsync.usage.rejections_total",
		metric.WithDescription("Requests rejected by a quota window, labeled by window."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create rejections counter", zap.Error(err))
	}

	m.alerts, err = meter.Int64Counter(
		"vectorsync.usage.alerts_total",
		metric.WithDescription("Persisted usage alerts, labeled by severity."),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		m.logger.Warn("failed to create alerts counter", zap.Error(err))
	}

	return m
}

func (m *trackerMetrics) recordAccepted(ctx context.Context, provider string, tokens int64, cost float64) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if m.tokens != nil {
		m.tokens.Add(ctx, tokens, attrs)
	}
	if m.cost != nil {
		m.cost.Add(ctx, cost, attrs)
	}
}

func (m *trackerMetrics) recordRejection(ctx context.Context, window Window) {
	if m.rejections != nil {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("window", string(window))))
	}
}

func (m *trackerMetrics) recordAlert(ctx context.Context, severity Severity) {
	if m.alerts != nil {
		m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", string(severity))))
	}
}
