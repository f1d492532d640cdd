package pms

import (
	"errors"
	"fmt"
	"time"
)

// The canonical error taxonomy. Adapters translate every vendor-specific
// failure into one of these before it crosses the adapter boundary.

// ValidationError indicates bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthenticationError indicates the vendor rejected our credentials even
// after one re-authentication attempt.
type AuthenticationError struct {
	Vendor string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Vendor, e.Cause)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// RateLimitError indicates the outbound limiter or the vendor throttled the
// call. RetryAfter is a hint for the caller's own backoff.
type RateLimitError struct {
	Vendor     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Vendor, e.RetryAfter)
}

// CircuitOpenError is returned without any network call while an endpoint's
// breaker is open.
type CircuitOpenError struct {
	Vendor   string
	Endpoint string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open for %s", e.Vendor, e.Endpoint)
}

// NotFoundError marks a missing vendor record. Adapters translate it to an
// empty result or nil at the boundary; it never counts as a failure.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// UpstreamError wraps a vendor 5xx or network fault. It is the only error
// kind the circuit breaker counts against an endpoint.
type UpstreamError struct {
	Vendor   string
	Endpoint string
	Status   int
	Cause    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: upstream status %d: %v", e.Vendor, e.Endpoint, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s: %s: upstream: %v", e.Vendor, e.Endpoint, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRetryable reports whether an idempotent read may be retried after err.
// Only upstream faults qualify; validation, auth, throttling, and open
// circuits are surfaced immediately.
func IsRetryable(err error) bool {
	return IsUpstream(err)
}
