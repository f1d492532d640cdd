package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/pkg/logging"
)

func TestManager_SingleFlightUnderConcurrency(t *testing.T) {
	var authCalls int64
	authenticate := func(ctx context.Context) (Token, error) {
		atomic.AddInt64(&authCalls, 1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		return Token{Value: "tok-1", Expiry: time.Now().Add(time.Hour)}, nil
	}
	m := NewManager("carestack", authenticate, logging.Default())

	const callers = 25
	var wg sync.WaitGroup
	values := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = m.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if values[i] != "tok-1" {
			t.Fatalf("caller %d: token = %q", i, values[i])
		}
	}
	if got := atomic.LoadInt64(&authCalls); got != 1 {
		t.Fatalf("authentication requests = %d, want exactly 1", got)
	}
}

func TestManager_RefreshesWithinMargin(t *testing.T) {
	var authCalls int64
	now := time.Now()
	authenticate := func(ctx context.Context) (Token, error) {
		n := atomic.AddInt64(&authCalls, 1)
		if n == 1 {
			// First token expires just inside the safety margin.
			return Token{Value: "stale", Expiry: now.Add(30 * time.Second)}, nil
		}
		return Token{Value: "fresh", Expiry: now.Add(time.Hour)}, nil
	}
	m := NewManager("carestack", authenticate, logging.Default(),
		WithRefreshMargin(60*time.Second),
		WithClock(func() time.Time { return now }),
	)

	first, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("first Token(): %v", err)
	}
	if first != "stale" {
		t.Fatalf("first token = %q, want stale", first)
	}

	// The cached token is within the 60s safety margin, so the next call
	// must refresh proactively instead of serving it.
	second, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token(): %v", err)
	}
	if second != "fresh" {
		t.Fatalf("second token = %q, want fresh", second)
	}
	if got := atomic.LoadInt64(&authCalls); got != 2 {
		t.Fatalf("auth calls = %d, want 2", got)
	}
}

func TestManager_InvalidateForcesReauth(t *testing.T) {
	var authCalls int64
	authenticate := func(ctx context.Context) (Token, error) {
		n := atomic.AddInt64(&authCalls, 1)
		return Token{Value: "tok-" + string(rune('0'+n)), Expiry: time.Now().Add(time.Hour)}, nil
	}
	m := NewManager("eaglesoft", authenticate, logging.Default())

	first, err := m.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m.Invalidate(first)
	second, err := m.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("token not rotated after invalidation: %q", second)
	}
	if atomic.LoadInt64(&authCalls) != 2 {
		t.Fatalf("auth calls = %d, want 2", authCalls)
	}
}

func TestManager_InvalidateStaleValueIsNoop(t *testing.T) {
	var authCalls int64
	authenticate := func(ctx context.Context) (Token, error) {
		atomic.AddInt64(&authCalls, 1)
		return Token{Value: "current", Expiry: time.Now().Add(time.Hour)}, nil
	}
	m := NewManager("eaglesoft", authenticate, logging.Default())

	if _, err := m.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	// A racing caller invalidates a value that has already been replaced.
	m.Invalidate("some-older-token")
	if _, err := m.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&authCalls); got != 1 {
		t.Fatalf("auth calls = %d, want 1 (stale invalidation must not re-auth)", got)
	}
}

func TestManager_AuthFailureSurfacesAuthenticationError(t *testing.T) {
	authenticate := func(ctx context.Context) (Token, error) {
		return Token{}, errors.New("invalid client secret")
	}
	m := NewManager("carestack", authenticate, logging.Default())

	_, err := m.Token(context.Background())
	var ae *pms.AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthenticationError", err)
	}
	if ae.Vendor != "carestack" {
		t.Fatalf("vendor = %s", ae.Vendor)
	}
}

func TestManager_CancelledWaiterDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	authenticate := func(ctx context.Context) (Token, error) {
		<-release
		return Token{Value: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	}
	m := NewManager("carestack", authenticate, logging.Default())

	cancelled, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Token(cancelled)
		errCh <- err
	}()

	okCh := make(chan error, 1)
	go func() {
		_, err := m.Token(context.Background())
		okCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-okCh; err != nil {
		t.Fatalf("surviving waiter err = %v, want nil", err)
	}
}
