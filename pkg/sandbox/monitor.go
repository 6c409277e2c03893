package sandbox

import (
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// defaultSampleInterval is how often the monitor polls resource usage.
const defaultSampleInterval = 100 * time.Millisecond

// ViolationFunc receives each resource-limit violation as it is detected.
type ViolationFunc func(*lserror.Error)

// StopFunc is the hard-stop callback, invoked once when a violation
// requires the monitored execution to be terminated.
type StopFunc func()

// ResourceMonitor samples memory, wall clock, goroutine count and an
// optional disk counter against a set of limits. Start and Stop are
// idempotent; a monitor is good for one execution.
type ResourceMonitor struct {
	limits   ResourceLimits
	interval time.Duration

	onViolation ViolationFunc
	onStop      StopFunc

	started   atomic.Bool
	stopped   atomic.Bool
	startedAt time.Time
	diskBytes atomic.Int64
	fired     atomic.Bool

	mu         sync.Mutex
	violations []*lserror.Error
	cancel     context.CancelFunc
	done       chan struct{}
}

// MonitorOption configures a ResourceMonitor.
type MonitorOption func(*ResourceMonitor)

// WithSampleInterval overrides the polling interval.
func WithSampleInterval(d time.Duration) MonitorOption {
	return func(m *ResourceMonitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithViolationFunc installs the violation sink, typically an event-bus
// publisher.
func WithViolationFunc(fn ViolationFunc) MonitorOption {
	return func(m *ResourceMonitor) { m.onViolation = fn }
}

// WithStopFunc installs the hard-stop callback, typically the execution's
// context cancel.
func WithStopFunc(fn StopFunc) MonitorOption {
	return func(m *ResourceMonitor) { m.onStop = fn }
}

// NewResourceMonitor creates a monitor for one execution under limits.
func NewResourceMonitor(limits ResourceLimits, opts ...MonitorOption) *ResourceMonitor {
	m := &ResourceMonitor{limits: limits, interval: defaultSampleInterval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins sampling. Calling Start on a running monitor is a no-op.
func (m *ResourceMonitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.startedAt = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()
	go m.loop(ctx)
}

// Stop ends sampling and waits for the sampling goroutine to exit. Calling
// Stop on a stopped (or never-started) monitor is a no-op.
func (m *ResourceMonitor) Stop() {
	if !m.started.Load() || !m.stopped.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	cancel()
	<-done
}

// AddDiskBytes accounts bytes written by the monitored execution.
func (m *ResourceMonitor) AddDiskBytes(n int64) { m.diskBytes.Add(n) }

// Elapsed is the wall-clock time since Start.
func (m *ResourceMonitor) Elapsed() time.Duration {
	if !m.started.Load() {
		return 0
	}
	return time.Since(m.startedAt)
}

// Violations returns the violations detected so far.
func (m *ResourceMonitor) Violations() []*lserror.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*lserror.Error, len(m.violations))
	copy(out, m.violations)
	return out
}

func (m *ResourceMonitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	observability.SampleRuntime()
	if m.limits.MaxMemoryBytes > 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if int64(ms.HeapAlloc) > m.limits.MaxMemoryBytes {
			m.violate(lserror.ResourceLimit("memory", m.limits.MaxMemoryBytes, int64(ms.HeapAlloc)))
		}
	}
	if m.limits.MaxExecutionTime > 0 {
		if elapsed := time.Since(m.startedAt); elapsed > m.limits.MaxExecutionTime {
			m.violate(lserror.ResourceLimit("wall_clock",
				int64(m.limits.MaxExecutionTime), int64(elapsed)))
		}
	}
	if m.limits.MaxGoroutines > 0 {
		if n := runtime.NumGoroutine(); n > m.limits.MaxGoroutines {
			m.violate(lserror.ResourceLimit("goroutines", int64(m.limits.MaxGoroutines), int64(n)))
		}
	}
	if m.limits.MaxDiskBytes > 0 {
		if n := m.diskBytes.Load(); n > m.limits.MaxDiskBytes {
			m.violate(lserror.ResourceLimit("disk", m.limits.MaxDiskBytes, n))
		}
	}
}

func (m *ResourceMonitor) violate(err *lserror.Error) {
	m.mu.Lock()
	m.violations = append(m.violations, err)
	m.mu.Unlock()

	log.Printf("[Sandbox] resource violation: %v", err)
	if m.onViolation != nil {
		m.onViolation(err)
	}
	// The hard stop fires at most once per monitor.
	if m.onStop != nil && m.fired.CompareAndSwap(false, true) {
		m.onStop()
	}
}
