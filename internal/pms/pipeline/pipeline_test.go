package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/breaker"
	"github.com/novadent/pms-adapter/pkg/logging"
)

func newTestPipeline(t *testing.T, settings Settings, logBuf *bytes.Buffer) *Pipeline {
	t.Helper()
	logger := logging.Default()
	if logBuf != nil {
		logger = logging.NewWithWriter(logBuf, "info")
	}
	m := metrics.NewAdapterMetrics(prometheus.NewRegistry())
	return New("carestack", settings, logger, m)
}

func upstream(status int) error {
	return &pms.UpstreamError{Vendor: "carestack", Endpoint: "appointments.create", Status: status, Cause: errors.New("boom")}
}

func TestDo_SuccessPassesThrough(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000}, nil)
	var called bool
	err := p.Do(context.Background(), "patients.search", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("call not invoked")
	}
}

func TestDo_OpensBreakerAndFailsFastWithoutCalling(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000, FailureThreshold: 5, Cooldown: time.Minute}, nil)

	for i := 0; i < 5; i++ {
		_ = p.Do(context.Background(), "appointments.create", func(ctx context.Context) error {
			return upstream(502)
		})
	}
	if got := p.BreakerState("appointments.create"); got != breaker.Open {
		t.Fatalf("state = %s, want open", got)
	}

	var called int32
	err := p.Do(context.Background(), "appointments.create", func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	var coe *pms.CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("err = %v, want CircuitOpenError", err)
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("network call performed while circuit open")
	}
}

func TestDo_OpenCircuitSkipsLimiterQueue(t *testing.T) {
	// Two failures open the circuit and drain the token bucket (burst 2,
	// next refill ~500ms away). The open-circuit call must not wait for it.
	p := newTestPipeline(t, Settings{RequestsPerMinute: 120, MaxWait: 2 * time.Second, FailureThreshold: 2, Cooldown: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_ = p.Do(context.Background(), "appointments.create", func(ctx context.Context) error {
			return upstream(502)
		})
	}
	if got := p.BreakerState("appointments.create"); got != breaker.Open {
		t.Fatalf("state = %s, want open", got)
	}

	start := time.Now()
	err := p.Do(context.Background(), "appointments.create", func(ctx context.Context) error {
		t.Fatal("network call performed while circuit open")
		return nil
	})
	elapsed := time.Since(start)

	var coe *pms.CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("err = %v, want CircuitOpenError", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Fatalf("open-circuit call took %s, want immediate fail-fast", elapsed)
	}
}

func TestDoIdempotent_RetriesUpstreamOnly(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000, RetryAttempts: 3, RetryBaseDelay: time.Millisecond}, nil)

	var attempts int32
	err := p.DoIdempotent(context.Background(), "slots.list", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return upstream(503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v after retries", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestDoIdempotent_ValidationErrorIsNeverRetried(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000, RetryAttempts: 3, RetryBaseDelay: time.Millisecond}, nil)

	var attempts int32
	err := p.DoIdempotent(context.Background(), "patients.search", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return &pms.ValidationError{Field: "phone", Reason: "required"}
	})
	var ve *pms.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestDoIdempotent_ExhaustedRetriesSurfaceUpstreamError(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000, RetryAttempts: 3, RetryBaseDelay: time.Millisecond}, nil)

	var attempts int32
	err := p.DoIdempotent(context.Background(), "slots.list", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return upstream(500)
	})
	if !pms.IsUpstream(err) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestDo_EmitsStructuredFailureRecord(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000}, &buf)

	_ = p.Do(context.Background(), "appointments.create", func(ctx context.Context) error {
		return upstream(502)
	})

	line := strings.SplitN(buf.String(), "\n", 2)[0]
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("failure record is not JSON: %v", err)
	}
	if record["vendor"] != "carestack" {
		t.Fatalf("vendor = %v", record["vendor"])
	}
	if record["endpoint"] != "appointments.create" {
		t.Fatalf("endpoint = %v", record["endpoint"])
	}
	if record["status"] != float64(502) {
		t.Fatalf("status = %v, want 502", record["status"])
	}
	if _, ok := record["latency_ms"]; !ok {
		t.Fatal("failure record is missing latency")
	}
}

func TestDo_NotFoundIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000}, &buf)

	err := p.Do(context.Background(), "patients.get", func(ctx context.Context) error {
		return &pms.NotFoundError{Entity: "patient", ID: "p-1"}
	})
	if !pms.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("not-found produced a failure record: %s", buf.String())
	}
}

func TestDo_RespectsCancelledContext(t *testing.T) {
	p := newTestPipeline(t, Settings{RequestsPerMinute: 6000}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called bool
	err := p.Do(ctx, "patients.search", func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("call invoked despite cancelled context")
	}
}
