package hooks

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// ExecutionRecorder receives the record of every hook run or skip. The
// session layer installs a recorder to persist executions for replay.
type ExecutionRecorder func(HookExecution)

// Pipeline drives hooks through their breakers and the latency monitor. It
// is the only path components use to fire lifecycle phases.
type Pipeline struct {
	registry *Registry
	breakers *BreakerManager
	monitor  *PerformanceMonitor

	skipped  atomic.Uint64
	failures atomic.Uint64

	recorder atomic.Pointer[ExecutionRecorder]
}

// NewPipeline wires a registry, breaker manager and monitor together.
func NewPipeline(registry *Registry, breakers *BreakerManager, monitor *PerformanceMonitor) *Pipeline {
	return &Pipeline{registry: registry, breakers: breakers, monitor: monitor}
}

// Registry exposes the underlying hook registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Breakers exposes the breaker manager.
func (p *Pipeline) Breakers() *BreakerManager { return p.breakers }

// Monitor exposes the performance monitor.
func (p *Pipeline) Monitor() *PerformanceMonitor { return p.monitor }

// SetRecorder installs the execution recorder. Pass nil to detach.
func (p *Pipeline) SetRecorder(r ExecutionRecorder) {
	if r == nil {
		p.recorder.Store(nil)
		return
	}
	p.recorder.Store(&r)
}

// SkippedCount reports hook runs suppressed by open breakers.
func (p *Pipeline) SkippedCount() uint64 { return p.skipped.Load() }

// FailureCount reports hooks that returned errors.
func (p *Pipeline) FailureCount() uint64 { return p.failures.Load() }

// Run fires every hook registered for phase, in priority order. A hook
// failure is counted and reported in the returned executions but does not
// stop later hooks; hooks with open breakers are skipped. The fast path for
// a phase with no hooks does no allocation.
func (p *Pipeline) Run(ctx context.Context, hc *HookContext) []HookExecution {
	regs := p.registry.HooksFor(hc.Phase)
	if len(regs) == 0 {
		return nil
	}

	executions := make([]HookExecution, 0, len(regs))
	for _, reg := range regs {
		breaker := p.breakers.Get(reg.ID)
		if !breaker.CanExecute() {
			p.skipped.Add(1)
			exec := HookExecution{
				HookID:        reg.ID,
				Phase:         hc.Phase,
				ComponentID:   hc.ComponentID,
				CorrelationID: hc.CorrelationID,
				Skipped:       true,
				Error:         lserror.CircuitOpen(reg.ID).Error(),
			}
			executions = append(executions, exec)
			p.record(exec)
			continue
		}

		exec := runHook(ctx, reg, hc)
		if exec.Error != "" {
			p.failures.Add(1)
			breaker.RecordFailure()
			log.Printf("[Hooks] hook %s failed in %s: %s", reg.ID, hc.Phase, exec.Error)
		} else {
			breaker.RecordSuccess(exec.Duration)
		}
		p.monitor.Record(reg.ID, exec.Duration)
		executions = append(executions, exec)
		p.record(exec)

		select {
		case <-ctx.Done():
			return executions
		default:
		}
	}
	return executions
}

// RunOne fires a single hook by id within a phase, through its breaker and
// the monitor, and reports whether the hook was found.
func (p *Pipeline) RunOne(ctx context.Context, hookID string, hc *HookContext) (HookExecution, bool) {
	var reg Registration
	found := false
	for _, r := range p.registry.HooksFor(hc.Phase) {
		if r.ID == hookID {
			reg, found = r, true
			break
		}
	}
	if !found {
		return HookExecution{}, false
	}

	breaker := p.breakers.Get(reg.ID)
	if !breaker.CanExecute() {
		p.skipped.Add(1)
		exec := HookExecution{
			HookID:        reg.ID,
			Phase:         hc.Phase,
			ComponentID:   hc.ComponentID,
			CorrelationID: hc.CorrelationID,
			Skipped:       true,
			Error:         lserror.CircuitOpen(reg.ID).Error(),
		}
		p.record(exec)
		return exec, true
	}

	exec := runHook(ctx, reg, hc)
	if exec.Error != "" {
		p.failures.Add(1)
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess(exec.Duration)
	}
	p.monitor.Record(reg.ID, exec.Duration)
	p.record(exec)
	return exec, true
}

func (p *Pipeline) record(exec HookExecution) {
	result := "ok"
	switch {
	case exec.Skipped:
		result = "skipped"
	case exec.Error != "":
		result = "error"
	}
	observability.RecordHookExecution(string(exec.Phase), result, exec.Duration)
	if r := p.recorder.Load(); r != nil {
		(*r)(exec)
	}
}

// runHook invokes one handler, capturing duration and converting panics
// into hook failures so a broken hook cannot take the pipeline down.
func runHook(ctx context.Context, reg Registration, hc *HookContext) (exec HookExecution) {
	exec = HookExecution{
		HookID:        reg.ID,
		Phase:         hc.Phase,
		ComponentID:   hc.ComponentID,
		CorrelationID: hc.CorrelationID,
		StartedAt:     time.Now().UTC(),
	}
	defer func() {
		exec.Duration = time.Since(exec.StartedAt)
		if r := recover(); r != nil {
			exec.Error = fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := reg.Handler(ctx, hc); err != nil {
		exec.Error = err.Error()
	}
	return exec
}
