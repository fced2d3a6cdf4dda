package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker("test", BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	require.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, b.ConsecutiveFailures())
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	err := b.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	var coe *CircuitOpenError
	require.ErrorAs(t, err, &coe)
	assert.Equal(t, "test", coe.Dependency)
	assert.Equal(t, time.Minute, coe.RetryAfter)

	// Still inside the cooldown window.
	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenSingleTrial(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	*now = now.Add(61 * time.Second)

	// First caller after cooldown gets the trial slot.
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Concurrent callers are rejected until the trial resolves.
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.ConsecutiveFailures())
	assert.NoError(t, b.Allow())
}

func TestCircuitBreakerTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// The cooldown clock restarted at the trial failure.
	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	*now = now.Add(31 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(99).String())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "transient wrapper", err: Transient(errors.New("503")), want: true},
		{name: "wrapped transient", err: errors.Join(errors.New("outer"), Transient(errors.New("inner"))), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
