package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// RecordStore is the subset of the vector client the tracker persists
// through. Usage records ride in the vector store as placeholder-vector
// records so deployments need no second database.
type RecordStore interface {
	Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error
	ListByFilter(ctx context.Context, namespace string, filter *vectorstore.Filter, limit int) ([]string, error)
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]vectorstore.Record, error)
}

// Config holds tracker configuration.
type Config struct {
	// UsageNamespace is where usage records live. Default: "usage"
	UsageNamespace string `koanf:"usage_namespace"`

	// AlertNamespace is where alert records live. Default: "alerts"
	AlertNamespace string `koanf:"alert_namespace"`

	// DailyTokenLimit caps tokens per user per local day. Default: 1000000
	DailyTokenLimit int64 `koanf:"daily_token_limit"`

	// BurstTokenLimit caps tokens per user per rolling burst window.
	// Default: 10000
	BurstTokenLimit int64 `koanf:"burst_token_limit"`

	// BurstWindow is the rolling burst window length. Default: 60s
	BurstWindow time.Duration `koanf:"burst_window"`

	// DailyAlertFraction of the daily limit at which a WARNING alert is
	// raised. Default: 0.9
	DailyAlertFraction float64 `koanf:"daily_alert_fraction"`

	// DailyCostAlert is the per-day USD spend above which a CRITICAL alert
	// is raised. Default: 10.0
	DailyCostAlert float64 `koanf:"daily_cost_alert"`

	// ScanLimit caps the record ids returned by one quota or rollup scan.
	// A scan that fills the cap is logged, since totals beyond it are
	// undercounted. Default: 10000
	ScanLimit int `koanf:"scan_limit"`

	// Rates overrides the built-in per-provider price table.
	Rates map[string]ProviderRates `koanf:"rates"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.UsageNamespace == "" {
		c.UsageNamespace = "usage"
	}
	if c.AlertNamespace == "" {
		c.AlertNamespace = "alerts"
	}
	if c.DailyTokenLimit == 0 {
		c.DailyTokenLimit = 1_000_000
	}
	if c.BurstTokenLimit == 0 {
		c.BurstTokenLimit = 10_000
	}
	if c.BurstWindow == 0 {
		c.BurstWindow = 60 * time.Second
	}
	if c.DailyAlertFraction == 0 {
		c.DailyAlertFraction = 0.9
	}
	if c.DailyCostAlert == 0 {
		c.DailyCostAlert = 10.0
	}
	if c.ScanLimit == 0 {
		c.ScanLimit = 10_000
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.DailyTokenLimit < 0 || c.BurstTokenLimit < 0 {
		return fmt.Errorf("%w: token limits cannot be negative", ErrInvalidConfig)
	}
	if c.DailyAlertFraction < 0 || c.DailyAlertFraction > 1 {
		return fmt.Errorf("%w: daily alert fraction must be within [0, 1]", ErrInvalidConfig)
	}
	if c.ScanLimit < 0 {
		return fmt.Errorf("%w: scan limit cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// TrackRequest describes one unit of token consumption to gate and record.
type TrackRequest struct {
	ProjectID    string
	UserID       string
	SessionID    string
	Provider     string
	AnalysisType string
	InputTokens  int64
	OutputTokens int64
}

// Tokens returns the request's total token count.
func (r TrackRequest) Tokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// TrackResult reports an accepted request.
type TrackResult struct {
	// RecordID is the id of the persisted usage record.
	RecordID string

	// SessionID is the session the record was attributed to.
	SessionID string

	// Cost is the USD cost charged for the request.
	Cost float64

	// DailyTokensUsed is the user's daily consumption including this
	// request.
	DailyTokensUsed int64
}

// Tracker gates token consumption against monthly, daily and burst ceilings
// and records accepted usage as append-only records.
//
// The full check-then-record sequence runs under a per-user lock, so two
// concurrent requests from one user cannot both pass a check that only one
// of them fits under.
type Tracker struct {
	config  Config
	store   RecordStore
	plans   PlanSource
	rates   *RateTable
	windows *windows
	logger  *zap.Logger
	metrics *trackerMetrics

	lowestPlan Plan

	// now is swapped out in tests.
	now func() time.Time
}

// NewTracker creates a usage tracker. plans may be nil, in which case every
// user resolves to the lowest built-in tier.
func NewTracker(config Config, store RecordStore, plans PlanSource, logger *zap.Logger) (*Tracker, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if plans == nil {
		plans = NewStaticPlanSource(DefaultPlans(), nil)
	}

	return &Tracker{
		config:     config,
		store:      store,
		plans:      plans,
		rates:      NewRateTable(config.Rates),
		windows:    newWindows(),
		logger:     logger,
		metrics:    newTrackerMetrics(logger),
		lowestPlan: DefaultPlans()[0],
		now:        time.Now,
	}, nil
}

// TrackTokenUsage checks the request against the user's monthly plan
// ceiling, the daily limit and the rolling burst limit, and on acceptance
// computes cost, persists a usage record and charges the in-process
// windows. A rejected request persists nothing and charges nothing.
func (t *Tracker) TrackTokenUsage(ctx context.Context, req TrackRequest) (TrackResult, error) {
	if req.UserID == "" {
		return TrackResult{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 {
		return TrackResult{}, fmt.Errorf("%w: token counts cannot be negative", ErrInvalidRequest)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	tokens := req.Tokens()
	now := t.now()

	window := t.windows.forUser(req.UserID)
	window.mu.Lock()
	defer window.mu.Unlock()
	window.rollover(now, t.config.BurstWindow)

	plan := t.planForUser(ctx, req.UserID)
	monthlyUsed, err := t.monthlyConsumption(ctx, req.UserID, now)
	if err != nil {
		return TrackResult{}, fmt.Errorf("reading monthly consumption: %w", err)
	}
	if monthlyUsed+tokens > plan.MonthlyTokenLimit {
		return TrackResult{}, t.reject(ctx, &QuotaExceededError{
			Window: WindowMonthly, Limit: plan.MonthlyTokenLimit, Used: monthlyUsed, Requested: tokens,
		}, req)
	}
	if window.dailyUsed+tokens > t.config.DailyTokenLimit {
		return TrackResult{}, t.reject(ctx, &QuotaExceededError{
			Window: WindowDaily, Limit: t.config.DailyTokenLimit, Used: window.dailyUsed, Requested: tokens,
		}, req)
	}
	if window.burstUsed+tokens > t.config.BurstTokenLimit {
		return TrackResult{}, t.reject(ctx, &QuotaExceededError{
			Window: WindowBurst, Limit: t.config.BurstTokenLimit, Used: window.burstUsed, Requested: tokens,
		}, req)
	}

	cost := t.rates.Cost(req.Provider, req.InputTokens, req.OutputTokens)
	record := UsageRecord{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Provider:     req.Provider,
		AnalysisType: req.AnalysisType,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		Cost:         cost,
		Timestamp:    now,
	}

	if err := t.persistRecord(ctx, record); err != nil {
		return TrackResult{}, fmt.Errorf("persisting usage record: %w", err)
	}
	window.record(now, tokens, cost)

	t.metrics.recordAccepted(ctx, req.Provider, tokens, cost)
	t.raiseAlerts(ctx, req.UserID, window)

	return TrackResult{
		RecordID:        record.ID,
		SessionID:       record.SessionID,
		Cost:            cost,
		DailyTokensUsed: window.dailyUsed,
	}, nil
}

// reject logs and counts a quota rejection.
func (t *Tracker) reject(ctx context.Context, qerr *QuotaExceededError, req TrackRequest) error {
	t.logger.Warn("token usage rejected",
		zap.String("user_id", req.UserID),
		zap.String("window", string(qerr.Window)),
		zap.Int64("limit", qerr.Limit),
		zap.Int64("used", qerr.Used),
		zap.Int64("requested", qerr.Requested),
	)
	t.metrics.recordRejection(ctx, qerr.Window)
	return qerr
}

// planForUser resolves the user's plan, defaulting to the lowest tier when
// the user has no subscription or the source fails.
func (t *Tracker) planForUser(ctx context.Context, userID string) Plan {
	plan, ok, err := t.plans.PlanForUser(ctx, userID)
	if err != nil {
		t.logger.Warn("plan lookup failed, defaulting to lowest tier",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return t.lowestPlan
	}
	if !ok {
		return t.lowestPlan
	}
	return plan
}

// monthlyConsumption sums the user's usage records since month start.
// O(records) by construction: the store aggregates nothing server-side.
func (t *Tracker) monthlyConsumption(ctx context.Context, userID string, now time.Time) (int64, error) {
	filter := vectorstore.Eq("user_id", userID).And(vectorstore.Eq("month", monthKey(now)))
	records, err := t.scan(ctx, t.config.UsageNamespace, filter)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, record := range records {
		total += metadataInt(record.Metadata, "input_tokens") + metadataInt(record.Metadata, "output_tokens")
	}
	return total, nil
}

// persistRecord writes the usage record as a placeholder-vector record.
func (t *Tracker) persistRecord(ctx context.Context, record UsageRecord) error {
	return t.store.Upsert(ctx, t.config.UsageNamespace, []vectorstore.Record{{
		ID:     record.ID,
		Values: placeholderVector(),
		Metadata: vectorstore.Metadata{
			"project_id":    record.ProjectID,
			"user_id":       record.UserID,
			"session_id":    record.SessionID,
			"provider":      record.Provider,
			"analysis_type": record.AnalysisType,
			"input_tokens":  record.InputTokens,
			"output_tokens": record.OutputTokens,
			"cost":          record.Cost,
			"timestamp":     record.Timestamp.Format(time.RFC3339Nano),
			"month":         monthKey(record.Timestamp),
		},
		Namespace: t.config.UsageNamespace,
	}})
}

// raiseAlerts persists threshold alerts after an accepted request. Alert
// persistence is best effort: a failed write is logged, never surfaced.
// Callers must hold the window mutex.
func (t *Tracker) raiseAlerts(ctx context.Context, userID string, window *userWindow) {
	warnAt := int64(float64(t.config.DailyTokenLimit) * t.config.DailyAlertFraction)
	if window.dailyUsed >= warnAt && !window.dailyWarned {
		window.dailyWarned = true
		t.persistAlert(ctx, Alert{
			ID:        uuid.NewString(),
			UserID:    userID,
			Severity:  SeverityWarning,
			Message:   fmt.Sprintf("daily token usage at %d of %d", window.dailyUsed, t.config.DailyTokenLimit),
			Timestamp: t.now(),
		})
	}

	if window.dailyUsed >= t.config.DailyTokenLimit && !window.limitAlerted {
		window.limitAlerted = true
		t.persistAlert(ctx, Alert{
			ID:        uuid.NewString(),
			UserID:    userID,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("daily token limit of %d reached", t.config.DailyTokenLimit),
			Timestamp: t.now(),
		})
	}

	if window.dailyCost > t.config.DailyCostAlert && !window.costAlerted {
		window.costAlerted = true
		t.persistAlert(ctx, Alert{
			ID:        uuid.NewString(),
			UserID:    userID,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("daily spend $%.2f exceeds $%.2f alert threshold", window.dailyCost, t.config.DailyCostAlert),
			Timestamp: t.now(),
		})
	}
}

func (t *Tracker) persistAlert(ctx context.Context, alert Alert) {
	err := t.store.Upsert(ctx, t.config.AlertNamespace, []vectorstore.Record{{
		ID:     alert.ID,
		Values: placeholderVector(),
		Metadata: vectorstore.Metadata{
			"user_id":   alert.UserID,
			"severity":  string(alert.Severity),
			"message":   alert.Message,
			"timestamp": alert.Timestamp.Format(time.RFC3339Nano),
		},
		Namespace: t.config.AlertNamespace,
	}})
	if err != nil {
		t.logger.Error("failed to persist usage alert",
			zap.String("user_id", alert.UserID),
			zap.String("severity", string(alert.Severity)),
			zap.Error(err),
		)
		return
	}
	t.metrics.recordAlert(ctx, alert.Severity)
	t.logger.Warn("usage alert raised",
		zap.String("user_id", alert.UserID),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
	)
}

// CumulativeUsage sums every usage record of a project.
func (t *Tracker) CumulativeUsage(ctx context.Context, projectID string) (Totals, error) {
	if projectID == "" {
		return Totals{}, fmt.Errorf("%w: project id is required", ErrInvalidRequest)
	}
	return t.rollup(ctx, vectorstore.Eq("project_id", projectID))
}

// SessionUsage sums every usage record of a session.
func (t *Tracker) SessionUsage(ctx context.Context, sessionID string) (Totals, error) {
	if sessionID == "" {
		return Totals{}, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	return t.rollup(ctx, vectorstore.Eq("session_id", sessionID))
}

func (t *Tracker) rollup(ctx context.Context, filter *vectorstore.Filter) (Totals, error) {
	records, err := t.scan(ctx, t.config.UsageNamespace, filter)
	if err != nil {
		return Totals{}, err
	}

	var totals Totals
	for _, record := range records {
		totals.Records++
		totals.InputTokens += metadataInt(record.Metadata, "input_tokens")
		totals.OutputTokens += metadataInt(record.Metadata, "output_tokens")
		totals.Cost += metadataFloat(record.Metadata, "cost")
	}
	return totals, nil
}

// scan lists matching ids and fetches the records behind them. The listing
// path cannot page, so a scan that fills the cap has likely truncated and
// is logged.
func (t *Tracker) scan(ctx context.Context, namespace string, filter *vectorstore.Filter) (map[string]vectorstore.Record, error) {
	ids, err := t.store.ListByFilter(ctx, namespace, filter, t.config.ScanLimit)
	if err != nil {
		return nil, err
	}
	if len(ids) >= t.config.ScanLimit {
		t.logger.Warn("usage scan hit the listing cap, totals may be undercounted",
			zap.String("namespace", namespace),
			zap.Int("scan_limit", t.config.ScanLimit),
		)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return t.store.Fetch(ctx, namespace, ids)
}

// placeholderVector returns the fixed vector usage and alert records are
// stored under. They are only ever listed and fetched, never searched.
func placeholderVector() []float32 {
	v := make([]float32, vectorstore.Dimension)
	v[0] = 1
	return v
}

func metadataInt(m vectorstore.Metadata, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func metadataFloat(m vectorstore.Metadata, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
