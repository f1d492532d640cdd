// Package tokens manages per-adapter auth credentials: obtain, cache,
// proactive refresh, and invalidation on vendor 401s. Each adapter instance
// owns exactly one Manager; nothing is shared across offices.
package tokens

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/pkg/logging"
)

// DefaultRefreshMargin is how close to expiry a token is refreshed
// proactively rather than used.
const DefaultRefreshMargin = 60 * time.Second

// authTimeout bounds a single authentication round trip independently of any
// one caller's deadline, so a cancelled waiter does not abort the flight for
// the others.
const authTimeout = 30 * time.Second

// Token is a vendor credential with its expiry.
type Token struct {
	Value  string
	Expiry time.Time
}

// AuthenticateFunc performs the vendor-specific authentication round trip.
type AuthenticateFunc func(ctx context.Context) (Token, error)

// Manager caches a live token and coalesces concurrent refreshes: under N
// callers with no valid token, exactly one authentication request is issued
// and the other N-1 await its result.
type Manager struct {
	vendor       string
	authenticate AuthenticateFunc
	margin       time.Duration
	logger       *logging.Logger
	now          func() time.Time

	group singleflight.Group

	// mu guards current.
	mu      sync.Mutex
	current Token
}

// Option tunes a Manager.
type Option func(*Manager)

// WithRefreshMargin overrides the proactive-refresh safety margin.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a token manager for one adapter instance.
func NewManager(vendor string, authenticate AuthenticateFunc, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		vendor:       vendor,
		authenticate: authenticate,
		margin:       DefaultRefreshMargin,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a live token value, authenticating transparently when none
// exists or the cached one is within the refresh margin of expiry.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	tok := m.current
	m.mu.Unlock()
	if m.isLive(tok) {
		return tok.Value, nil
	}
	return m.refresh(ctx)
}

// Invalidate discards the cached token, but only if value is still the
// current one. A racing caller that already observed a fresh token does not
// force a second re-authentication.
func (m *Manager) Invalidate(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Value == value {
		m.current = Token{}
	}
}

func (m *Manager) isLive(tok Token) bool {
	return tok.Value != "" && m.now().Add(m.margin).Before(tok.Expiry)
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan("auth", func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have just
		// populated a live token.
		m.mu.Lock()
		tok := m.current
		m.mu.Unlock()
		if m.isLive(tok) {
			return tok.Value, nil
		}

		// Detach from the triggering caller so its cancellation does not
		// strand the other waiters.
		authCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), authTimeout)
		defer cancel()

		fresh, err := m.authenticate(authCtx)
		if err != nil {
			m.logger.Warn("authentication failed", "vendor", m.vendor, "error", err)
			return "", &pms.AuthenticationError{Vendor: m.vendor, Cause: err}
		}

		m.mu.Lock()
		m.current = fresh
		m.mu.Unlock()
		return fresh.Value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		// The flight keeps running for the remaining waiters.
		return "", ctx.Err()
	}
}
