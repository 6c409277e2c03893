// Package executor runs agents, tools and workflows under a uniform
// contract: lifecycle hooks around every execution, timeouts and
// cancellation, optional metrics collection.
package executor

import (
	"log"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// TimeoutManager validates and clamps requested execution timeouts.
type TimeoutManager struct {
	// Default applies when a caller requests no timeout. Zero disables
	// the default deadline.
	Default time.Duration
	// Max clamps every requested timeout. Zero means unclamped.
	Max time.Duration
	// WarnThreshold logs requests above it, after clamping.
	WarnThreshold time.Duration
}

// NewTimeoutManager creates a manager with a max clamp.
func NewTimeoutManager(def, max time.Duration) *TimeoutManager {
	return &TimeoutManager{Default: def, Max: max}
}

// Resolve validates a requested timeout and returns the effective one.
// Zero requests mean "use the default"; explicitly negative requests are
// rejected, as is a zero request when there is no default.
func (m *TimeoutManager) Resolve(requested time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, lserror.Validation("timeout", "timeout must be positive")
	}
	if requested == 0 {
		return m.Default, nil
	}
	return m.Validate(requested)
}

// Validate checks an explicit timeout: zero and negative are rejected,
// values above Max clamp down to it.
func (m *TimeoutManager) Validate(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, lserror.Validation("timeout", "timeout must be positive")
	}
	if m.Max > 0 && d > m.Max {
		log.Printf("[Executor] timeout %v exceeds maximum, clamping to %v", d, m.Max)
		d = m.Max
	}
	if m.WarnThreshold > 0 && d > m.WarnThreshold {
		log.Printf("[Executor] timeout %v exceeds warn threshold %v", d, m.WarnThreshold)
	}
	return d, nil
}
