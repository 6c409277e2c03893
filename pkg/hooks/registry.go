// Package hooks implements the lifecycle hook pipeline: an ordered registry
// of callbacks with per-hook circuit breaking and latency metering.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is a lifecycle transition hooks can attach to.
type Phase string

const (
	PhaseBeforeCreate    Phase = "before_create"
	PhaseAfterCreate     Phase = "after_create"
	PhaseBeforeExecute   Phase = "before_execute"
	PhaseAfterExecute    Phase = "after_execute"
	PhaseBeforeStep      Phase = "before_step"
	PhaseAfterStep       Phase = "after_step"
	PhaseBeforePause     Phase = "before_pause"
	PhaseAfterPause      Phase = "after_pause"
	PhaseResume          Phase = "resume"
	PhaseBeforeTerminate Phase = "before_terminate"
	PhaseAfterTerminate  Phase = "after_terminate"
	PhaseError           Phase = "error"
)

// HookContext carries the component and payload a hook runs against. Hooks
// may mutate Data; mutations are visible to later hooks in the same run.
type HookContext struct {
	Phase         Phase
	ComponentID   string
	CorrelationID string
	Data          map[string]any
	// Err is set for PhaseError runs.
	Err error
}

// Handler is the hook callback. A returned error counts as a hook failure;
// it is reported and metered but does not stop later hooks.
type Handler func(ctx context.Context, hc *HookContext) error

// Registration is one hook attached to a phase. Lower priorities run first;
// ties run in registration order.
type Registration struct {
	ID       string
	Phase    Phase
	Priority int
	Handler  Handler

	seq uint64
}

// Registry is the ordered hook set. Safe for concurrent use; hook execution
// never holds the registry lock.
type Registry struct {
	mu    sync.RWMutex
	hooks map[Phase][]Registration
	seq   uint64
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Phase][]Registration)}
}

// Register attaches a handler and returns its id.
func (r *Registry) Register(phase Phase, priority int, handler Handler) string {
	return r.RegisterNamed(uuid.New().String(), phase, priority, handler)
}

// RegisterNamed attaches a handler under a caller-chosen id. Stable ids keep
// breaker and monitor series continuous across restarts.
func (r *Registry) RegisterNamed(id string, phase Phase, priority int, handler Handler) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	reg := Registration{ID: id, Phase: phase, Priority: priority, Handler: handler, seq: r.seq}
	list := append(r.hooks[phase], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
	r.hooks[phase] = list
	return id
}

// Unregister detaches a hook by id. Returns true if it was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for phase, list := range r.hooks {
		for i, reg := range list {
			if reg.ID == id {
				r.hooks[phase] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// HooksFor returns the execution-ordered registrations for a phase.
func (r *Registry) HooksFor(phase Phase) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.hooks[phase]
	out := make([]Registration, len(list))
	copy(out, list)
	return out
}

// Count returns the total number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, list := range r.hooks {
		n += len(list)
	}
	return n
}

// HookExecution records one hook run (or skip) for metering and session
// replay.
type HookExecution struct {
	HookID        string        `json:"hook_id"`
	Phase         Phase         `json:"phase"`
	ComponentID   string        `json:"component_id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
	Skipped       bool          `json:"skipped,omitempty"`
}
