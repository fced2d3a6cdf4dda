package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrCircuitOpen indicates the circuit breaker rejected the call before any I/O.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig indicates invalid executor configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// CircuitOpenError is returned when the circuit breaker for a dependency is
// open and the cooldown window has not elapsed. No I/O is attempted.
type CircuitOpenError struct {
	// Dependency is the name of the external dependency whose circuit is open.
	Dependency string

	// RetryAfter is the remaining cooldown before a trial call is permitted.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s (retry after %s)", e.Dependency, e.RetryAfter.Round(time.Millisecond))
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// PermanentError is returned after retries are exhausted. The last underlying
// error is preserved in the chain.
type PermanentError struct {
	// Op is the operation type that failed.
	Op Operation

	// Attempts is the number of attempts made before giving up.
	Attempts int

	// Err is the last error observed.
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// TransientError marks an error as retryable. Clients wrap provider-level
// failures (HTTP 5xx, 429, connection resets) in TransientError so the
// executor retries them.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether an error should be retried.
//
// Retryable: explicit TransientError wrappers, network timeouts, attempt
// timeouts, and the gRPC codes Unavailable, DeadlineExceeded, Aborted and
// ResourceExhausted.
//
// Not retryable: validation failures, not found, permission denied, and
// anything else we cannot classify.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
			return true
		}
	}

	return false
}
