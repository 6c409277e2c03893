package workflow

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// ErrorStrategy controls how Sequential reacts to a failing step.
type ErrorStrategy string

const (
	// StopOnError ends the workflow at the first failing step.
	StopOnError ErrorStrategy = "stop"
	// ContinueOnError records the failure and keeps going.
	ContinueOnError ErrorStrategy = "continue"
)

// Sequential runs its steps in declared order. Each step's output becomes
// available to the next under the step's name.
type Sequential struct {
	WorkflowName string
	Steps        []Step
	Strategy     ErrorStrategy
}

// NewSequential builds and validates a sequential workflow.
func NewSequential(name string, steps []Step) (*Sequential, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	return &Sequential{WorkflowName: name, Steps: steps, Strategy: StopOnError}, nil
}

func (w *Sequential) Name() string { return w.WorkflowName }

func (w *Sequential) Run(ctx context.Context, env Env, input map[string]any) (*Result, error) {
	res := &Result{}
	current := cloneInput(input)

	for _, step := range w.Steps {
		if err := ctx.Err(); err != nil {
			return res, lserror.Cancelled()
		}
		started := time.Now()
		out, err := runStep(ctx, env, step, current)
		so := StepOutput{Step: step.Name, Output: out, Duration: time.Since(started)}
		res.StepsExecuted++
		if err != nil {
			so.Error = err.Error()
			res.StepsFailed++
			res.Outputs = append(res.Outputs, so)
			if w.Strategy != ContinueOnError {
				return res, err
			}
			continue
		}
		res.Outputs = append(res.Outputs, so)
		current[step.Name] = out
	}
	return res, nil
}

// Condition decides a conditional branch from the workflow input.
type Condition func(input map[string]any) bool

// Branch is a named step list inside Conditional or Parallel.
type Branch struct {
	Name      string
	Condition Condition
	Steps     []Step
}

// Conditional runs the first branch whose condition is true, the default
// branch when none is, and succeeds with an empty result when there is no
// default either.
type Conditional struct {
	WorkflowName string
	Branches     []Branch
	Default      []Step
}

// NewConditional builds and validates a conditional workflow.
func NewConditional(name string, branches []Branch, defaultSteps []Step) (*Conditional, error) {
	for _, b := range branches {
		if b.Condition == nil {
			return nil, lserror.Validation("branches", "branch "+b.Name+" has no condition")
		}
		if err := validateSteps(b.Steps); err != nil {
			return nil, err
		}
	}
	if err := validateSteps(defaultSteps); err != nil {
		return nil, err
	}
	return &Conditional{WorkflowName: name, Branches: branches, Default: defaultSteps}, nil
}

func (w *Conditional) Name() string { return w.WorkflowName }

func (w *Conditional) Run(ctx context.Context, env Env, input map[string]any) (*Result, error) {
	for _, b := range w.Branches {
		if b.Condition(input) {
			res, err := runSteps(ctx, env, b.Steps, input)
			res.Branch = b.Name
			return res, err
		}
	}
	if len(w.Default) > 0 {
		res, err := runSteps(ctx, env, w.Default, input)
		res.Branch = "default"
		return res, err
	}
	return &Result{}, nil
}

// BreakCondition ends a loop early; it sees the finished iteration number
// (starting at 1) and that iteration's outputs.
type BreakCondition func(iteration int, output map[string]any) bool

// Aggregation selects what a Loop keeps from its iterations.
type Aggregation string

const (
	// CollectAll keeps every iteration's step outputs.
	CollectAll Aggregation = "collect_all"
	// LastOnly keeps only the final iteration's step outputs.
	LastOnly Aggregation = "last_only"
)

// Loop runs its body up to MaxIterations times, stopping early when the
// break condition fires.
type Loop struct {
	WorkflowName  string
	Body          []Step
	MaxIterations int
	Break         BreakCondition
	Aggregate     Aggregation
}

// NewLoop builds and validates a loop workflow.
func NewLoop(name string, body []Step, maxIterations int) (*Loop, error) {
	if maxIterations <= 0 {
		return nil, lserror.Validation("max_iterations", "must be positive")
	}
	if err := validateSteps(body); err != nil {
		return nil, err
	}
	return &Loop{WorkflowName: name, Body: body, MaxIterations: maxIterations, Aggregate: CollectAll}, nil
}

func (w *Loop) Name() string { return w.WorkflowName }

func (w *Loop) Run(ctx context.Context, env Env, input map[string]any) (*Result, error) {
	res := &Result{}
	for i := 1; i <= w.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, lserror.Cancelled()
		}
		iterInput := cloneInput(input)
		iterInput["iteration"] = i

		iterRes, err := runSteps(ctx, env, w.Body, iterInput)
		res.Iterations = i
		res.StepsExecuted += iterRes.StepsExecuted
		res.StepsFailed += iterRes.StepsFailed
		if w.Aggregate == LastOnly {
			res.Outputs = iterRes.Outputs
		} else {
			res.Outputs = append(res.Outputs, iterRes.Outputs...)
		}
		if err != nil {
			return res, err
		}
		if w.Break != nil && w.Break(i, lastOutput(iterRes)) {
			break
		}
	}
	return res, nil
}

// Parallel runs its branches concurrently, at most MaxConcurrency at a
// time. With FailFast the first branch error cancels the siblings;
// otherwise all branches run and the first error is reported at the end.
type Parallel struct {
	WorkflowName   string
	Branches       []Branch
	MaxConcurrency int
	FailFast       bool
}

// NewParallel builds and validates a parallel workflow.
func NewParallel(name string, branches []Branch) (*Parallel, error) {
	for _, b := range branches {
		if b.Name == "" {
			return nil, lserror.Validation("branches", "parallel branch without a name")
		}
		if err := validateSteps(b.Steps); err != nil {
			return nil, err
		}
	}
	return &Parallel{WorkflowName: name, Branches: branches}, nil
}

func (w *Parallel) Name() string { return w.WorkflowName }

func (w *Parallel) Run(ctx context.Context, env Env, input map[string]any) (*Result, error) {
	res := &Result{Outputs: make([]StepOutput, 0, len(w.Branches))}

	var g *errgroup.Group
	gctx := ctx
	if w.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	if w.MaxConcurrency > 0 {
		g.SetLimit(w.MaxConcurrency)
	}

	var mu sync.Mutex
	branchResults := make([]*Result, len(w.Branches))
	for i, b := range w.Branches {
		i, b := i, b
		g.Go(func() error {
			br, err := runSteps(gctx, env, b.Steps, cloneInput(input))
			mu.Lock()
			branchResults[i] = br
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	// Branch outputs merge in declared order regardless of finish order.
	for i, br := range branchResults {
		if br == nil {
			continue
		}
		for _, so := range br.Outputs {
			so.Step = w.Branches[i].Name + "." + so.Step
			res.Outputs = append(res.Outputs, so)
		}
		res.StepsExecuted += br.StepsExecuted
		res.StepsFailed += br.StepsFailed
	}
	return res, err
}

// runSteps is the shared step-list driver for branch and loop bodies. It
// stops at the first error.
func runSteps(ctx context.Context, env Env, steps []Step, input map[string]any) (*Result, error) {
	res := &Result{}
	current := cloneInput(input)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, lserror.Cancelled()
		}
		started := time.Now()
		out, err := runStep(ctx, env, step, current)
		so := StepOutput{Step: step.Name, Output: out, Duration: time.Since(started)}
		res.StepsExecuted++
		if err != nil {
			so.Error = err.Error()
			res.StepsFailed++
			res.Outputs = append(res.Outputs, so)
			return res, err
		}
		res.Outputs = append(res.Outputs, so)
		current[step.Name] = out
	}
	return res, nil
}

func lastOutput(res *Result) map[string]any {
	if len(res.Outputs) == 0 {
		return nil
	}
	return res.Outputs[len(res.Outputs)-1].Output
}

func cloneInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	return out
}
