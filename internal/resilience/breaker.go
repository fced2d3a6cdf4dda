package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// StateClosed is normal operation; calls pass through.
	StateClosed BreakerState = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen permits exactly one trial call.
	StateHalfOpen
)

// String returns the state name for logging.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures before opening.
	// Default: 5
	Threshold int `koanf:"threshold"`

	// Cooldown is how long the breaker stays open before permitting a
	// half-open trial call. Default: 60s
	Cooldown time.Duration `koanf:"cooldown"`
}

// ApplyDefaults sets default values for unset fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 60 * time.Second
	}
}

// CircuitBreaker guards a single external dependency.
//
// State transitions are strictly CLOSED -> OPEN -> HALF_OPEN -> {CLOSED|OPEN}.
// HALF_OPEN admits exactly one in-flight trial call; concurrent callers are
// rejected until the trial resolves.
type CircuitBreaker struct {
	dependency string
	config     BreakerConfig

	mu            sync.Mutex
	state         BreakerState
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker for the named dependency.
func NewCircuitBreaker(dependency string, config BreakerConfig) *CircuitBreaker {
	config.ApplyDefaults()
	return &CircuitBreaker{
		dependency: dependency,
		config:     config,
		state:      StateClosed,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. In the OPEN state it returns a
// CircuitOpenError until the cooldown elapses, at which point the breaker
// moves to HALF_OPEN and admits a single trial call.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.config.Cooldown {
			return &CircuitOpenError{
				Dependency: b.dependency,
				RetryAfter: b.config.Cooldown - elapsed,
			}
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Dependency: b.dependency}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker to CLOSED.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
}

// RecordFailure counts a failed call. In CLOSED it opens the breaker once the
// consecutive failure threshold is reached; in HALF_OPEN the failed trial
// reopens the breaker and restarts the cooldown clock.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.trialInFlight = false

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.Threshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
	}
}

// releaseTrial resolves an in-flight half-open trial whose call left the
// executor without a recorded outcome (caller cancellation, non-retryable
// error). The trial counts as failed: the breaker reopens and the cooldown
// clock restarts. In every other state this is a no-op, so validation-class
// failures in CLOSED still do not count against the dependency.
func (b *CircuitBreaker) releaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen || !b.trialInFlight {
		return
	}
	b.trialInFlight = false
	b.failures++
	b.lastFailure = b.now()
	b.state = StateOpen
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
