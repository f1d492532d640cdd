// Package pipeline composes the shared call path every vendor adapter routes
// its requests through: rate limiter, per-endpoint circuit breaker, bounded
// retry for idempotent reads, and structured failure records for the
// observability collaborator.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/breaker"
	"github.com/novadent/pms-adapter/internal/pms/ratelimit"
	"github.com/novadent/pms-adapter/pkg/logging"
)

const (
	// DefaultRetryAttempts is the total attempt budget for idempotent reads.
	DefaultRetryAttempts = 3
	// DefaultRetryBaseDelay seeds the exponential backoff between attempts.
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Settings tunes one adapter's pipeline. Zero values take defaults.
type Settings struct {
	FailureThreshold  uint32
	Cooldown          time.Duration
	RequestsPerMinute int
	MaxWait           time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
}

// Pipeline is owned by exactly one adapter instance, matching the per-office
// ownership of breakers, limiter, and cache.
type Pipeline struct {
	vendor         string
	breakers       *breaker.Registry
	limiter        *ratelimit.Limiter
	logger         *logging.Logger
	metrics        *metrics.AdapterMetrics
	retryAttempts  int
	retryBaseDelay time.Duration
}

// New builds a pipeline with its own breaker registry and rate limiter.
func New(vendor string, settings Settings, logger *logging.Logger, m *metrics.AdapterMetrics) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	if settings.RetryAttempts <= 0 {
		settings.RetryAttempts = DefaultRetryAttempts
	}
	if settings.RetryBaseDelay <= 0 {
		settings.RetryBaseDelay = DefaultRetryBaseDelay
	}
	p := &Pipeline{
		vendor:         vendor,
		limiter:        ratelimit.New(vendor, settings.RequestsPerMinute, settings.MaxWait),
		logger:         logger,
		metrics:        m,
		retryAttempts:  settings.RetryAttempts,
		retryBaseDelay: settings.RetryBaseDelay,
	}
	p.breakers = breaker.NewRegistry(vendor, breaker.Settings{
		FailureThreshold: settings.FailureThreshold,
		Cooldown:         settings.Cooldown,
		OnStateChange: func(endpoint string, from, to breaker.State) {
			m.ObserveBreakerTransition(vendor, endpoint, string(to))
			logger.Warn("circuit breaker transition",
				"vendor", vendor, "endpoint", endpoint, "from", string(from), "to", string(to))
		},
	})
	return p
}

// Do runs one attempt of call under the limiter and the endpoint's breaker.
// Writes use this directly: no blind retries, idempotency-key replay is the
// adapter's job.
func (p *Pipeline) Do(ctx context.Context, endpoint string, call func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// An open circuit fails before the limiter so fast-fails never queue or
	// spend limiter tokens the half-open trial will need.
	if p.breakers.StateOf(endpoint) == breaker.Open {
		err := &pms.CircuitOpenError{Vendor: p.vendor, Endpoint: endpoint}
		p.observe(endpoint, err, 0)
		return err
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		p.observe(endpoint, err, 0)
		return err
	}

	start := time.Now()
	err := p.breakers.Execute(endpoint, func() error {
		return call(ctx)
	})
	p.observe(endpoint, err, time.Since(start))
	return err
}

// DoIdempotent runs call with bounded exponential backoff and jitter. Only
// upstream faults are retried; everything else surfaces immediately.
func (p *Pipeline) DoIdempotent(ctx context.Context, endpoint string, call func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryBaseDelay
	bo.RandomizationFactor = 0.5

	attempts := uint64(p.retryAttempts - 1) // backoff counts retries, not attempts
	return backoff.Retry(func() error {
		err := p.Do(ctx, endpoint, call)
		if err != nil && !pms.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx))
}

// BreakerState reports an endpoint's circuit state, mostly for tests and the
// ops surface.
func (p *Pipeline) BreakerState(endpoint string) breaker.State {
	return p.breakers.StateOf(endpoint)
}

func (p *Pipeline) observe(endpoint string, err error, latency time.Duration) {
	outcome := outcomeOf(err)
	p.metrics.ObserveRequest(p.vendor, endpoint, outcome, latency.Seconds())
	if err == nil || pms.IsNotFound(err) {
		return
	}

	status := 0
	var ue *pms.UpstreamError
	if errors.As(err, &ue) {
		status = ue.Status
	}
	p.logger.Error("pms call failed",
		"vendor", p.vendor,
		"endpoint", endpoint,
		"outcome", outcome,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"error", err,
	)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pms.IsNotFound(err):
		return "not_found"
	case pms.IsUpstream(err):
		return "upstream_error"
	default:
	}
	var (
		coe *pms.CircuitOpenError
		rle *pms.RateLimitError
		ae  *pms.AuthenticationError
		ve  *pms.ValidationError
	)
	switch {
	case errors.As(err, &coe):
		return "circuit_open"
	case errors.As(err, &rle):
		return "rate_limited"
	case errors.As(err, &ae):
		return "auth_error"
	case errors.As(err, &ve):
		return "validation_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
