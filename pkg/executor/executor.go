package executor

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/agents"
	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sandbox"
	"github.com/llmspell-dev/llmspell/pkg/state"
	"github.com/llmspell-dev/llmspell/pkg/tools"
	"github.com/llmspell-dev/llmspell/pkg/workflow"
)

// Options tune one execution.
type Options struct {
	// Timeout bounds the execution; zero means the manager default.
	Timeout time.Duration
	// CollectMetrics stores an execution record in state.
	CollectMetrics bool
	// CorrelationID threads through hooks and events.
	CorrelationID string
	// Sandbox overrides the executor's default sandbox for tool calls.
	Sandbox *sandbox.Context
	// SessionID attributes the execution to a session.
	SessionID string
}

// metricsScope is where execution metrics land in state.
var metricsScope = state.CustomScope("executions")

// Executor is the scheduler: the single path through which agents, tools
// and workflows run.
type Executor struct {
	pipeline *hooks.Pipeline
	timeouts *TimeoutManager
	state    *state.Manager
	tools    *tools.Registry
	agents   *agents.Registry

	// DefaultSandbox applies to tool invocations that carry none.
	DefaultSandbox *sandbox.Context

	mu        sync.RWMutex
	workflows map[string]workflow.Workflow
}

// New wires an executor to its registries, hook pipeline, timeout manager
// and state manager.
func New(pipeline *hooks.Pipeline, timeouts *TimeoutManager, stateMgr *state.Manager,
	toolReg *tools.Registry, agentReg *agents.Registry) *Executor {
	return &Executor{
		pipeline:  pipeline,
		timeouts:  timeouts,
		state:     stateMgr,
		tools:     toolReg,
		agents:    agentReg,
		workflows: make(map[string]workflow.Workflow),
	}
}

// RegisterWorkflow adds a workflow under its name.
func (e *Executor) RegisterWorkflow(w workflow.Workflow) error {
	if w.Name() == "" {
		return lserror.Validation("name", "workflow name must not be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[w.Name()]; exists {
		return lserror.Validation("name", "workflow already registered: "+w.Name())
	}
	e.workflows[w.Name()] = w
	return nil
}

// Workflow returns a registered workflow by name.
func (e *Executor) Workflow(name string) (workflow.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, exists := e.workflows[name]
	if !exists {
		return nil, lserror.NotFound("workflow " + name)
	}
	return w, nil
}

// Workflows returns the registered workflow names, sorted.
func (e *Executor) Workflows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.workflows))
	for name := range e.workflows {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExecuteTool validates input against the tool schema and runs the tool
// under the full execution contract.
func (e *Executor) ExecuteTool(ctx context.Context, name string, input map[string]any, opts Options) (any, error) {
	tool, err := e.tools.Get(name)
	if err != nil {
		return nil, err
	}
	args, err := tool.Schema.Validate(input)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var out any
	err = e.run(ctx, "tool:"+name, opts, func(ctx context.Context) (int, int, error) {
		ec := &tools.ExecContext{
			SessionID:     opts.SessionID,
			CorrelationID: opts.CorrelationID,
			Sandbox:       e.sandboxFor(opts),
		}
		var err error
		out, err = tool.Handler(ctx, args, ec)
		if err != nil {
			return 1, 1, err
		}
		return 1, 0, nil
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordToolInvocation(name, status, time.Since(start))
	return out, err
}

// ExecuteAgent runs one agent turn under the execution contract.
func (e *Executor) ExecuteAgent(ctx context.Context, id string, input map[string]any, opts Options) (map[string]any, error) {
	agent, err := e.agents.Get(id)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = e.run(ctx, "agent:"+id, opts, func(ctx context.Context) (int, int, error) {
		var err error
		out, err = agent.Execute(ctx, input)
		if err != nil {
			return 1, 1, err
		}
		return 1, 0, nil
	})
	return out, err
}

// ExecuteWorkflow runs a registered workflow by name.
func (e *Executor) ExecuteWorkflow(ctx context.Context, name string, input map[string]any, opts Options) (*workflow.Result, error) {
	w, err := e.Workflow(name)
	if err != nil {
		return nil, err
	}
	return e.RunWorkflow(ctx, w, input, opts)
}

// RunWorkflow runs a workflow value under the execution contract.
func (e *Executor) RunWorkflow(ctx context.Context, w workflow.Workflow, input map[string]any, opts Options) (*workflow.Result, error) {
	var res *workflow.Result
	err := e.run(ctx, "workflow:"+w.Name(), opts, func(ctx context.Context) (int, int, error) {
		var err error
		res, err = w.Run(ctx, e.env(opts), input)
		if res == nil {
			res = &workflow.Result{}
		}
		return res.StepsExecuted, res.StepsFailed, err
	})
	return res, err
}

// run is the uniform contract: before_execute hooks, the operation under
// timeout and cancellation, metrics, then after_execute hooks on success or
// error hooks on failure. Cancellation before start returns Cancelled
// without running anything.
func (e *Executor) run(ctx context.Context, componentID string, opts Options,
	op func(ctx context.Context) (executed, failed int, err error)) error {

	if err := ctx.Err(); err != nil {
		return lserror.Cancelled()
	}

	timeout, err := e.timeouts.Resolve(opts.Timeout)
	if err != nil {
		return err
	}

	hc := &hooks.HookContext{
		Phase:         hooks.PhaseBeforeExecute,
		ComponentID:   componentID,
		CorrelationID: opts.CorrelationID,
		Data:          map[string]any{},
	}
	e.pipeline.Run(ctx, hc)

	opCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	executed, failed, opErr := op(opCtx)
	duration := time.Since(started)

	if opErr != nil {
		switch {
		case errors.Is(opErr, context.DeadlineExceeded):
			opErr = lserror.Timeout(timeout)
		case errors.Is(opErr, context.Canceled):
			opErr = lserror.Cancelled()
		}
	}

	if opts.CollectMetrics {
		e.storeMetrics(ctx, componentID, duration, executed, failed, opErr)
	}

	if opErr != nil {
		hc.Phase = hooks.PhaseError
		hc.Err = opErr
		e.pipeline.Run(ctx, hc)
		return opErr
	}
	hc.Phase = hooks.PhaseAfterExecute
	e.pipeline.Run(ctx, hc)
	return nil
}

func (e *Executor) storeMetrics(ctx context.Context, componentID string, d time.Duration, executed, failed int, opErr error) {
	executionID := uuid.New().String()
	m := map[string]any{
		"execution_id":   executionID,
		"component":      componentID,
		"duration_ms":    d.Milliseconds(),
		"steps_executed": executed,
		"steps_failed":   failed,
	}
	if opErr != nil {
		m["error"] = opErr.Error()
	}
	// Metrics storage rides on the caller's context but survives its
	// cancellation; the record of a cancelled execution still matters.
	if err := e.state.Set(context.WithoutCancel(ctx), metricsScope, executionID, m); err != nil {
		log.Printf("[Executor] failed to store metrics for %s: %v", componentID, err)
	}
}

func (e *Executor) sandboxFor(opts Options) *sandbox.Context {
	if opts.Sandbox != nil {
		return opts.Sandbox
	}
	return e.DefaultSandbox
}

// env adapts the executor into the workflow step environment.
func (e *Executor) env(opts Options) workflow.Env {
	return &workflowEnv{executor: e, opts: opts}
}

type workflowEnv struct {
	executor *Executor
	opts     Options
}

func (we *workflowEnv) InvokeTool(ctx context.Context, name string, params map[string]any) (any, error) {
	tool, err := we.executor.tools.Get(name)
	if err != nil {
		return nil, err
	}
	args, err := tool.Schema.Validate(params)
	if err != nil {
		return nil, err
	}
	ec := &tools.ExecContext{
		SessionID:     we.opts.SessionID,
		CorrelationID: we.opts.CorrelationID,
		Sandbox:       we.executor.sandboxFor(we.opts),
	}
	return tool.Handler(ctx, args, ec)
}

func (we *workflowEnv) InvokeAgent(ctx context.Context, id string, input map[string]any) (map[string]any, error) {
	agent, err := we.executor.agents.Get(id)
	if err != nil {
		return nil, err
	}
	return agent.Execute(ctx, input)
}
