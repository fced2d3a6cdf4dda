// Package resilience provides the retry, timeout, circuit breaker and metrics
// layer that every external call in vectorsync goes through.
//
// One Executor guards one external dependency (the vector store, the
// embedding provider). Executors are plain injectable objects with no
// package-level state; construct one per dependency and share it across
// goroutines.
package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Operation classifies an external call for timeout selection, backoff
// tuning and metrics labeling.
type Operation string

const (
	OpQuery     Operation = "query"
	OpUpsert    Operation = "upsert"
	OpDelete    Operation = "delete"
	OpFetch     Operation = "fetch"
	OpEmbedding Operation = "embedding"
)

// defaultTimeouts are per-operation attempt timeouts.
var defaultTimeouts = map[Operation]time.Duration{
	OpQuery:     45 * time.Second,
	OpUpsert:    60 * time.Second,
	OpDelete:    30 * time.Second,
	OpFetch:     30 * time.Second,
	OpEmbedding: 120 * time.Second,
}

// Config holds executor configuration.
type Config struct {
	// Dependency names the external system this executor guards.
	// Used in error messages and logs.
	Dependency string `koanf:"dependency"`

	// MaxRetries is the total number of attempts per operation.
	// Default: 3
	MaxRetries int `koanf:"max_retries"`

	// BaseDelay is the initial backoff delay. Doubles each attempt.
	// Embedding operations use twice this value.
	// Default: 1s
	BaseDelay time.Duration `koanf:"base_delay"`

	// MaxJitter is the upper bound of the random jitter added to each
	// backoff delay. Default: 1s
	MaxJitter time.Duration `koanf:"max_jitter"`

	// Timeouts overrides per-operation attempt timeouts.
	Timeouts map[Operation]time.Duration `koanf:"timeouts"`

	// Breaker configures the circuit breaker.
	Breaker BreakerConfig `koanf:"breaker"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dependency == "" {
		c.Dependency = "external"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxJitter == 0 {
		c.MaxJitter = time.Second
	}
	c.Breaker.ApplyDefaults()
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if c.BaseDelay < 0 || c.MaxJitter < 0 {
		return fmt.Errorf("%w: delays cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Executor runs operations against a single external dependency with
// timeouts, retry with exponential backoff plus jitter, and a circuit
// breaker.
type Executor struct {
	config  Config
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *zap.Logger

	// jitter is swapped out in tests for determinism.
	jitter func(limit time.Duration) time.Duration
}

// NewExecutor creates an executor for one dependency.
func NewExecutor(config Config, logger *zap.Logger) (*Executor, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		config:  config,
		breaker: NewCircuitBreaker(config.Dependency, config.Breaker),
		metrics: NewMetrics(logger),
		logger:  logger,
		jitter: func(limit time.Duration) time.Duration {
			if limit <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(limit)))
		},
	}, nil
}

// Breaker exposes the circuit breaker, primarily for health reporting.
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// Metrics exposes the operation metrics.
func (e *Executor) Metrics() *Metrics {
	return e.metrics
}

// TimeoutFor returns the attempt timeout for an operation type.
func (e *Executor) TimeoutFor(op Operation) time.Duration {
	if d, ok := e.config.Timeouts[op]; ok && d > 0 {
		return d
	}
	if d, ok := defaultTimeouts[op]; ok {
		return d
	}
	return 30 * time.Second
}

// baseDelayFor returns the initial backoff delay for an operation type.
// Embedding generation is slow and expensive to re-run, so it backs off
// twice as hard.
func (e *Executor) baseDelayFor(op Operation) time.Duration {
	if op == OpEmbedding {
		return 2 * e.config.BaseDelay
	}
	return e.config.BaseDelay
}

// Execute runs fn with the attempt timeout for op, retrying transient
// failures with exponential backoff plus jitter.
//
// The circuit breaker is consulted before any I/O: an open circuit fails
// immediately with a CircuitOpenError. Exhausting retries returns a
// PermanentError wrapping the last failure and counts one failure against
// the breaker. Cancelling ctx aborts the current attempt and forgoes
// further retries. Every exit path resolves a half-open trial: an early
// return counts as a failed trial so the breaker can never stay latched.
//
// A result arriving after the attempt timeout is not trusted: the attempt
// counts as failed regardless of what fn eventually returns.
func (e *Executor) Execute(ctx context.Context, op Operation, fn func(context.Context) error) error {
	if err := e.breaker.Allow(); err != nil {
		e.logger.Warn("call rejected by circuit breaker",
			zap.String("operation", string(op)),
			zap.String("dependency", e.config.Dependency),
		)
		return err
	}

	start := time.Now()
	timeout := e.TimeoutFor(op)

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		err := e.runAttempt(ctx, timeout, fn)
		if err == nil {
			e.breaker.RecordSuccess()
			e.metrics.Record(ctx, op, time.Since(start), attempt, nil)
			if attempt > 1 {
				e.logger.Info("operation recovered after retries",
					zap.String("operation", string(op)),
					zap.Int("attempts", attempt),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			return nil
		}
		lastErr = err

		// Caller gave up; do not burn retries on a dead request.
		if ctx.Err() != nil {
			e.breaker.releaseTrial()
			e.metrics.Record(ctx, op, time.Since(start), attempt, err)
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}

		if !IsTransient(err) {
			e.breaker.releaseTrial()
			e.metrics.Record(ctx, op, time.Since(start), attempt, err)
			return err
		}

		if attempt == e.config.MaxRetries {
			break
		}

		delay := e.backoffDelay(op, attempt)
		e.logger.Warn("operation failed, retrying",
			zap.String("operation", string(op)),
			zap.String("dependency", e.config.Dependency),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			e.breaker.releaseTrial()
			e.metrics.Record(ctx, op, time.Since(start), attempt, err)
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	e.breaker.RecordFailure()
	e.metrics.Record(ctx, op, time.Since(start), e.config.MaxRetries, lastErr)
	perr := &PermanentError{Op: op, Attempts: e.config.MaxRetries, Err: lastErr}
	e.logger.Error("operation failed after all retries",
		zap.String("operation", string(op)),
		zap.String("dependency", e.config.Dependency),
		zap.Int("attempts", e.config.MaxRetries),
		zap.Error(lastErr),
	)
	return perr
}

// runAttempt races one invocation of fn against the attempt timeout.
func (e *Executor) runAttempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

// backoffDelay computes base * 2^(attempt-1) plus random jitter.
func (e *Executor) backoffDelay(op Operation, attempt int) time.Duration {
	base := e.baseDelayFor(op)
	return base*(1<<(attempt-1)) + e.jitter(e.config.MaxJitter)
}
