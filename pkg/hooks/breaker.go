package hooks

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	// BreakerClosed passes calls through and counts outcomes.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the open duration elapses.
	BreakerOpen
	// BreakerHalfOpen admits one probe call at a time.
	BreakerHalfOpen
)

// String returns the conventional state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a circuit breaker. The defaults target at most a few
// percent pipeline overhead from misbehaving hooks.
type BreakerConfig struct {
	// FailureThreshold opens the breaker after this many failures in the window.
	FailureThreshold int
	// SlowCallDuration is the latency above which a call counts as slow.
	SlowCallDuration time.Duration
	// SlowCallThreshold opens the breaker after this many slow calls in the window.
	SlowCallThreshold int
	// Window bounds the rolling counters.
	Window time.Duration
	// OpenDuration is how long the breaker rejects before probing.
	OpenDuration time.Duration
	// SuccessThreshold closes the breaker after this many half-open successes.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  3,
		SlowCallDuration:  50 * time.Millisecond,
		SlowCallThreshold: 2,
		Window:            time.Minute,
		OpenDuration:      15 * time.Second,
		SuccessThreshold:  2,
	}
}

// BreakerStats is a point-in-time snapshot of one breaker.
type BreakerStats struct {
	Name           string       `json:"name"`
	State          BreakerState `json:"state"`
	Failures       int          `json:"failures"`
	Successes      int          `json:"successes"`
	SlowCalls      int          `json:"slow_calls"`
	TotalCalls     int          `json:"total_calls"`
	Skipped        uint64       `json:"skipped"`
	LastFailure    time.Time    `json:"last_failure,omitempty"`
	StateChangedAt time.Time    `json:"state_changed_at"`
}

// CircuitBreaker isolates a misbehaving hook. Closed → Open on reaching the
// failure or slow-call threshold inside the window; Open → HalfOpen after
// the open duration, admitting one probe at a time; HalfOpen → Closed after
// the success threshold, or back to Open on any failure.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu             sync.Mutex
	state          BreakerState
	windowStart    time.Time
	failures       int
	successes      int
	slowCalls      int
	totalCalls     int
	skipped        uint64
	lastFailure    time.Time
	stateChangedAt time.Time
	probeInFlight  bool
	halfOpenOKs    int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return newBreakerWithClock(name, cfg, time.Now)
}

func newBreakerWithClock(name string, cfg BreakerConfig, now func() time.Time) *CircuitBreaker {
	t := now()
	return &CircuitBreaker{
		name:           name,
		cfg:            cfg,
		now:            now,
		windowStart:    t,
		stateChangedAt: t,
	}
}

// Name returns the breaker identifier.
func (cb *CircuitBreaker) Name() string { return cb.name }

// CanExecute reports whether a call may proceed. In Open state it returns
// false until the open duration elapses, then returns true exactly once and
// moves to HalfOpen; in HalfOpen only one probe is admitted at a time.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.stateChangedAt) < cb.cfg.OpenDuration {
			cb.skipped++
			return false
		}
		cb.transition(BreakerHalfOpen)
		cb.probeInFlight = true
		return true
	default: // half open
		if cb.probeInFlight {
			cb.skipped++
			return false
		}
		cb.probeInFlight = true
		return true
	}
}

// RecordSuccess records a completed call and its latency.
func (cb *CircuitBreaker) RecordSuccess(d time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollWindow()
	cb.totalCalls++
	cb.successes++

	slow := cb.cfg.SlowCallDuration > 0 && d >= cb.cfg.SlowCallDuration
	if slow {
		cb.slowCalls++
	}

	switch cb.state {
	case BreakerHalfOpen:
		cb.probeInFlight = false
		if slow {
			// A slow probe is not a recovery signal.
			cb.transition(BreakerOpen)
			return
		}
		cb.halfOpenOKs++
		if cb.halfOpenOKs >= cb.cfg.SuccessThreshold {
			cb.transition(BreakerClosed)
		}
	case BreakerClosed:
		if cb.cfg.SlowCallThreshold > 0 && cb.slowCalls >= cb.cfg.SlowCallThreshold {
			cb.transition(BreakerOpen)
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollWindow()
	cb.totalCalls++
	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case BreakerHalfOpen:
		cb.probeInFlight = false
		cb.transition(BreakerOpen)
	case BreakerClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(BreakerOpen)
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats snapshots the breaker counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:           cb.name,
		State:          cb.state,
		Failures:       cb.failures,
		Successes:      cb.successes,
		SlowCalls:      cb.slowCalls,
		TotalCalls:     cb.totalCalls,
		Skipped:        cb.skipped,
		LastFailure:    cb.lastFailure,
		StateChangedAt: cb.stateChangedAt,
	}
}

// Reset forces the breaker back to Closed with empty counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(BreakerClosed)
	cb.failures = 0
	cb.successes = 0
	cb.slowCalls = 0
	cb.totalCalls = 0
	cb.skipped = 0
	cb.windowStart = cb.now()
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(next BreakerState) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.stateChangedAt = cb.now()
	cb.probeInFlight = false
	cb.halfOpenOKs = 0
	if next == BreakerClosed {
		cb.failures = 0
		cb.slowCalls = 0
		cb.windowStart = cb.now()
	}
}

// rollWindow resets the rolling counters when the window has elapsed. Must
// be called with the lock held.
func (cb *CircuitBreaker) rollWindow() {
	if cb.cfg.Window <= 0 {
		return
	}
	if cb.now().Sub(cb.windowStart) >= cb.cfg.Window {
		cb.windowStart = cb.now()
		cb.failures = 0
		cb.successes = 0
		cb.slowCalls = 0
		cb.totalCalls = 0
	}
}

// BreakerManager creates breakers on demand and serves the stats surfaces.
type BreakerManager struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakerManager creates a manager that hands out breakers with cfg.
func NewBreakerManager(cfg BreakerConfig) *BreakerManager {
	return &BreakerManager{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, creating it if needed.
func (m *BreakerManager) Get(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, m.cfg)
		m.breakers[name] = cb
	}
	return cb
}

// AllStats snapshots every breaker.
func (m *BreakerManager) AllStats() []BreakerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BreakerStats, 0, len(m.breakers))
	for _, cb := range m.breakers {
		out = append(out, cb.Stats())
	}
	return out
}

// ResetAll closes every breaker; used between tests.
func (m *BreakerManager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cb := range m.breakers {
		cb.Reset()
	}
}
