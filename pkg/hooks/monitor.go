package hooks

import (
	"sort"
	"sync"
	"time"
)

// defaultSampleCap bounds the per-hook latency samples.
const defaultSampleCap = 1024

// HookStats are derived latency statistics for one hook.
type HookStats struct {
	HookID string        `json:"hook_id"`
	Count  int           `json:"count"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Avg    time.Duration `json:"avg"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
}

type sample struct {
	at time.Time
	d  time.Duration
}

// PerformanceMonitor keeps rolling latency samples per hook and derives
// percentile reports. Safe for concurrent use.
type PerformanceMonitor struct {
	mu        sync.Mutex
	samples   map[string][]sample
	cap       int
	retention time.Duration
	now       func() time.Time
}

// MonitorOption configures a PerformanceMonitor.
type MonitorOption func(*PerformanceMonitor)

// WithSampleCap bounds the number of retained samples per hook.
func WithSampleCap(n int) MonitorOption {
	return func(m *PerformanceMonitor) {
		if n > 0 {
			m.cap = n
		}
	}
}

// WithRetention drops samples older than d.
func WithRetention(d time.Duration) MonitorOption {
	return func(m *PerformanceMonitor) { m.retention = d }
}

// NewPerformanceMonitor creates a monitor with a one-hour retention.
func NewPerformanceMonitor(opts ...MonitorOption) *PerformanceMonitor {
	m := &PerformanceMonitor{
		samples:   make(map[string][]sample),
		cap:       defaultSampleCap,
		retention: time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record adds one latency observation for a hook.
func (m *PerformanceMonitor) Record(hookID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.samples[hookID], sample{at: m.now(), d: d})
	if len(list) > m.cap {
		list = list[len(list)-m.cap:]
	}
	m.samples[hookID] = list
}

// StatsFor derives statistics over the retained samples for one hook.
func (m *PerformanceMonitor) StatsFor(hookID string) HookStats {
	m.mu.Lock()
	list := m.pruned(hookID)
	durations := make([]time.Duration, len(list))
	for i, s := range list {
		durations[i] = s.d
	}
	m.mu.Unlock()

	return deriveStats(hookID, durations)
}

// SlowHooks returns the ids whose p95 exceeds threshold, sorted.
func (m *PerformanceMonitor) SlowHooks(threshold time.Duration) []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.samples))
	for id := range m.samples {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var slow []string
	for _, id := range ids {
		if m.StatsFor(id).P95 > threshold {
			slow = append(slow, id)
		}
	}
	sort.Strings(slow)
	return slow
}

// Summary derives statistics for every tracked hook.
func (m *PerformanceMonitor) Summary() map[string]HookStats {
	m.mu.Lock()
	ids := make([]string, 0, len(m.samples))
	for id := range m.samples {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make(map[string]HookStats, len(ids))
	for _, id := range ids {
		out[id] = m.StatsFor(id)
	}
	return out
}

// pruned drops expired samples for hookID and returns the survivors. Must be
// called with the lock held.
func (m *PerformanceMonitor) pruned(hookID string) []sample {
	list := m.samples[hookID]
	if m.retention <= 0 || len(list) == 0 {
		return list
	}
	cutoff := m.now().Add(-m.retention)
	i := 0
	for i < len(list) && list[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		list = list[i:]
		m.samples[hookID] = list
	}
	return list
}

func deriveStats(hookID string, durations []time.Duration) HookStats {
	stats := HookStats{HookID: hookID, Count: len(durations)}
	if len(durations) == 0 {
		return stats
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	stats.Avg = total / time.Duration(len(sorted))
	stats.P50 = percentile(sorted, 50)
	stats.P95 = percentile(sorted, 95)
	stats.P99 = percentile(sorted, 99)
	return stats
}

// percentile uses the nearest-rank method over a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
