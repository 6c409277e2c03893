package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus reported by the health endpoint.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck probes one dependency. Critical failures mark the whole
// service unhealthy; non-critical ones are reported but tolerated.
type HealthCheck struct {
	Name     string
	Check    func(context.Context) error
	Timeout  time.Duration
	Critical bool
}

// CheckResult is the outcome of a single health check.
type CheckResult struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

// HealthReport is the JSON body of the health endpoint.
type HealthReport struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     string                 `json:"uptime"`
	Checks     map[string]CheckResult `json:"checks"`
	Goroutines int                    `json:"goroutines"`
	HeapBytes  uint64                 `json:"heap_bytes"`
}

// HealthChecker runs registered checks on demand.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	started time.Time
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		started: time.Now(),
	}
}

// Register adds or replaces a named check.
func (hc *HealthChecker) Register(check HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// Run executes every check and aggregates the report.
func (hc *HealthChecker) Run(ctx context.Context) HealthReport {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]HealthCheck, 0, len(names))
	for _, name := range names {
		checks = append(checks, hc.checks[name])
	}
	hc.mu.RUnlock()

	report := HealthReport{
		Status:    HealthHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.started).String(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for _, check := range checks {
		result := runCheck(ctx, check)
		report.Checks[check.Name] = result
		if result.Status == HealthUnhealthy && check.Critical {
			report.Status = HealthUnhealthy
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report.Goroutines = runtime.NumGoroutine()
	report.HeapBytes = ms.HeapAlloc
	return report
}

func runCheck(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- check.Check(checkCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	result := CheckResult{
		Status:   HealthHealthy,
		Duration: time.Since(start).String(),
	}
	if err != nil {
		result.Status = HealthUnhealthy
		result.Message = err.Error()
	}
	return result
}

// Server exposes /metrics and health endpoints on a dedicated listener.
type Server struct {
	addr       string
	checker    *HealthChecker
	httpServer *http.Server
}

// NewServer creates a telemetry server bound to addr, e.g. ":9090".
func NewServer(addr string, checker *HealthChecker) *Server {
	if checker == nil {
		checker = NewHealthChecker()
	}
	return &Server{addr: addr, checker: checker}
}

// Checker returns the health checker backing the endpoints.
func (s *Server) Checker() *HealthChecker { return s.checker }

// Handler builds the route mux without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := s.checker.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		report := s.checker.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != HealthHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
