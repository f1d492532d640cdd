// Package ratelimit bounds outbound request rate per adapter instance using a
// token bucket. Callers queue briefly when the bucket is empty; anything that
// would wait longer fails fast with the canonical RateLimitError so the AI
// conversation can tell the patient to hold on.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/novadent/pms-adapter/internal/pms"
)

const (
	// DefaultRequestsPerMinute matches the most restrictive vendor plan.
	DefaultRequestsPerMinute = 60
	// DefaultMaxWait is the longest a call queues before failing fast.
	DefaultMaxWait = 2 * time.Second
)

// Limiter wraps x/time/rate with the canonical error taxonomy. The underlying
// limiter hands out reservations in request order, so no caller is starved
// while others proceed.
type Limiter struct {
	vendor  string
	limiter *rate.Limiter
	maxWait time.Duration
}

// New creates a per-adapter limiter. Non-positive arguments take defaults.
func New(vendor string, requestsPerMinute int, maxWait time.Duration) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	// Burst of one second's worth of traffic, at least 1.
	burst := requestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		vendor:  vendor,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		maxWait: maxWait,
	}
}

// Acquire blocks until a token is available, the context is done, or the
// queueing bound is exceeded.
func (l *Limiter) Acquire(ctx context.Context) error {
	res := l.limiter.Reserve()
	if !res.OK() {
		return &pms.RateLimitError{Vendor: l.vendor, RetryAfter: l.maxWait}
	}
	delay := res.Delay()
	if delay == 0 {
		return nil
	}
	if delay > l.maxWait {
		res.Cancel()
		return &pms.RateLimitError{Vendor: l.vendor, RetryAfter: delay}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}
