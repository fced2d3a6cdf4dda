// Package usage records token consumption and enforces per-user rate and
// subscription limits. Usage records are append-only: once written they are
// never mutated, and rollups are computed by scanning them back, since the
// store offers filtered retrieval but no aggregation.
package usage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid tracker configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRequest indicates a malformed tracking request.
	ErrInvalidRequest = errors.New("invalid request")
)

// Window identifies which quota window a limit belongs to.
type Window string

const (
	WindowBurst   Window = "burst"
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// QuotaExceededError indicates a request rejected before any write because
// it would exceed a usage ceiling.
type QuotaExceededError struct {
	// Window is the quota window that would be exceeded.
	Window Window

	// Limit is the ceiling for the window, in tokens.
	Limit int64

	// Used is the consumption already recorded in the window.
	Used int64

	// Requested is the token count of the rejected request.
	Requested int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s token quota exceeded: %d used + %d requested > %d limit",
		e.Window, e.Used, e.Requested, e.Limit)
}

// UsageRecord is one append-only unit of recorded consumption.
type UsageRecord struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Provider     string    `json:"provider"`
	AnalysisType string    `json:"analysis_type"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// Tokens returns the record's total token count.
func (r UsageRecord) Tokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// Plan is a user's subscription plan and its ceilings.
type Plan struct {
	ID                string `koanf:"id"`
	MonthlyTokenLimit int64  `koanf:"monthly_token_limit"`
	ProjectLimit      int    `koanf:"project_limit"`
	AnalysisLimit     int    `koanf:"analysis_limit"`
	SocialPostLimit   int    `koanf:"social_post_limit"`
}

// Severity classifies a usage alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a persisted usage alert.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Totals is a scan-and-sum rollup of usage records.
type Totals struct {
	Records      int     `json:"records"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// monthKey partitions usage records by calendar month for filtered scans,
// since the store's filter model has no range operators.
func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
