package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsEndpointServesFamilies(t *testing.T) {
	InitMetrics()
	InitMetrics() // second call must be a no-op

	RecordToolInvocation("calculator", "ok", 12*time.Millisecond)
	RecordHookExecution("before_tool", "continue", time.Millisecond)
	RecordKernelMessage("shell", "execute_request")
	RecordEventPublished("tool.completed")
	RecordVectorInserts("acme", 3)
	SetSessionsActive(2)
	SetClientsConnected(1)
	SampleRuntime()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	body := rec.Body.String()
	for _, family := range []string{
		"llmspell_tool_invocations_total",
		"llmspell_tool_duration_seconds",
		"llmspell_hook_executions_total",
		"llmspell_kernel_messages_total",
		"llmspell_events_published_total",
		"llmspell_vector_inserts_total",
		"llmspell_sessions_active",
		"llmspell_clients_connected",
		"llmspell_memory_usage_bytes",
		"llmspell_goroutines",
	} {
		if !strings.Contains(body, family) {
			t.Errorf("metrics output missing %s", family)
		}
	}
}

func TestHealthCheckerAggregation(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(HealthCheck{
		Name:  "always-ok",
		Check: func(context.Context) error { return nil },
	})
	hc.Register(HealthCheck{
		Name:  "flaky",
		Check: func(context.Context) error { return errors.New("backend down") },
	})

	report := hc.Run(context.Background())
	if report.Status != HealthHealthy {
		t.Fatalf("non-critical failure should not mark service unhealthy, got %s", report.Status)
	}
	if report.Checks["flaky"].Status != HealthUnhealthy {
		t.Fatalf("flaky check should report unhealthy")
	}
	if report.Checks["flaky"].Message != "backend down" {
		t.Fatalf("unexpected message %q", report.Checks["flaky"].Message)
	}

	hc.Register(HealthCheck{
		Name:     "database",
		Critical: true,
		Check:    func(context.Context) error { return errors.New("no connection") },
	})
	report = hc.Run(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("critical failure should mark service unhealthy, got %s", report.Status)
	}
	if report.Goroutines == 0 {
		t.Fatalf("report should carry runtime goroutine count")
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register(HealthCheck{
		Name:     "slow",
		Timeout:  10 * time.Millisecond,
		Critical: true,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	report := hc.Run(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("timed-out critical check should be unhealthy, got %s", report.Status)
	}
}

func TestServerEndpoints(t *testing.T) {
	InitMetrics()
	srv := NewServer(":0", nil)
	handler := srv.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/health/live"); rec.Code != http.StatusOK {
		t.Fatalf("liveness returned %d", rec.Code)
	}
	if rec := get("/health/ready"); rec.Code != http.StatusOK {
		t.Fatalf("readiness returned %d", rec.Code)
	}
	if rec := get("/health"); rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	if rec := get("/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", rec.Code)
	}

	srv.Checker().Register(HealthCheck{
		Name:     "state",
		Critical: true,
		Check:    func(context.Context) error { return errors.New("gone") },
	})
	if rec := get("/health/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness should fail with a critical check down, got %d", rec.Code)
	}
	if rec := get("/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health should fail with a critical check down, got %d", rec.Code)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	if err := InitTracing(TracingConfig{Enabled: false}); err != nil {
		t.Fatalf("disabled tracing should not error: %v", err)
	}
	if err := InitTracing(TracingConfig{Enabled: true, ExporterType: "none"}); err != nil {
		t.Fatalf("none exporter should not error: %v", err)
	}
	if err := InitTracing(TracingConfig{Enabled: true, ExporterType: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown exporter should be rejected")
	}

	// Spans must be usable even without a configured provider.
	ctx, span := StartSpan(context.Background(), "test.operation", map[string]any{
		"tool":  "calculator",
		"count": 2,
	})
	if ctx == nil {
		t.Fatalf("StartSpan returned nil context")
	}
	span.End()

	if err := ShutdownTracing(context.Background()); err != nil {
		t.Fatalf("shutdown without provider should be nil: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("authorization=Bearer abc, x-tenant=acme")
	if headers["authorization"] != "Bearer abc" {
		t.Fatalf("unexpected authorization header %q", headers["authorization"])
	}
	if headers["x-tenant"] != "acme" {
		t.Fatalf("unexpected tenant header %q", headers["x-tenant"])
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty header string should yield nil map")
	}
}
