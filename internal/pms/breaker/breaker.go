// Package breaker gates calls to flaky vendor endpoints. One circuit breaker
// exists per logical endpoint name (never per raw URL, so breaker state stays
// bounded regardless of dynamic path segments).
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/novadent/pms-adapter/internal/pms"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens a
	// circuit.
	DefaultFailureThreshold = 5
	// DefaultCooldown is how long an open circuit fast-fails before allowing
	// a half-open trial.
	DefaultCooldown = 60 * time.Second
)

// Settings tunes a Registry. Zero values take the defaults above.
type Settings struct {
	FailureThreshold uint32
	Cooldown         time.Duration

	// OnStateChange is invoked on every breaker transition, e.g. for metrics.
	OnStateChange func(endpoint string, from, to State)
}

// State mirrors the three breaker states for callers that observe transitions.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Registry owns one breaker per logical endpoint for a single adapter
// instance. Breakers are created lazily at first use. Safe for concurrent
// use.
type Registry struct {
	vendor   string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry creates an empty per-adapter breaker registry.
func NewRegistry(vendor string, settings Settings) *Registry {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultFailureThreshold
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = DefaultCooldown
	}
	return &Registry{
		vendor:   vendor,
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute runs fn under the endpoint's breaker. While the circuit is open the
// call fails immediately with pms.CircuitOpenError and fn is never invoked.
// Only UpstreamError results count as breaker failures; validation, auth,
// throttling, and not-found outcomes pass through without tripping anything.
func (r *Registry) Execute(endpoint string, fn func() error) error {
	cb := r.breaker(endpoint)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &pms.CircuitOpenError{Vendor: r.vendor, Endpoint: endpoint}
	}
	return err
}

// StateOf exposes the current state of an endpoint's breaker. An endpoint
// that has never been used reports Closed.
func (r *Registry) StateOf(endpoint string) State {
	r.mu.Lock()
	cb, ok := r.breakers[endpoint]
	r.mu.Unlock()
	if !ok {
		return Closed
	}
	return fromGobreaker(cb.State())
}

func (r *Registry) breaker(endpoint string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[endpoint]; ok {
		return cb
	}
	threshold := r.settings.FailureThreshold
	onChange := r.settings.OnStateChange
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1, // exactly one half-open trial
		Timeout:     r.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// NotFound and caller errors are not endpoint health signals.
			return err == nil || !pms.IsUpstream(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
	r.breakers[endpoint] = cb
	return cb
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}
