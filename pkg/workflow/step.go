// Package workflow defines the workflow patterns the executor schedules:
// sequential, conditional, loop and parallel compositions of tool, agent
// and function steps.
package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// StepKind discriminates what a step invokes.
type StepKind string

const (
	StepTool     StepKind = "tool"
	StepAgent    StepKind = "agent"
	StepFunction StepKind = "function"
)

// StepFunc is an in-process function step.
type StepFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Step is one unit of work inside a workflow.
type Step struct {
	Name        string
	Description string
	Kind        StepKind

	// Tool and Params apply to StepTool.
	Tool   string
	Params map[string]any

	// Agent applies to StepAgent; the step input is passed through.
	Agent string

	// Func applies to StepFunction.
	Func StepFunc

	// Timeout bounds this step; zero means no per-step deadline.
	Timeout time.Duration
}

// StepOutput is the recorded result of one step run.
type StepOutput struct {
	Step     string         `json:"step"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Result aggregates a workflow run.
type Result struct {
	Outputs       []StepOutput `json:"outputs"`
	StepsExecuted int          `json:"steps_executed"`
	StepsFailed   int          `json:"steps_failed"`
	// Branch is set by Conditional to the branch that ran.
	Branch string `json:"branch,omitempty"`
	// Iterations is set by Loop.
	Iterations int `json:"iterations,omitempty"`
}

// Env resolves tool and agent steps against the live registries. The
// executor provides the implementation.
type Env interface {
	InvokeTool(ctx context.Context, name string, params map[string]any) (any, error)
	InvokeAgent(ctx context.Context, id string, input map[string]any) (map[string]any, error)
}

// Workflow is a runnable composition of steps.
type Workflow interface {
	// Name identifies the workflow for registration and metrics.
	Name() string
	// Run executes the workflow against env. Step outputs thread through
	// input under the previous step's name.
	Run(ctx context.Context, env Env, input map[string]any) (*Result, error)
}

// runStep executes one step with its optional timeout. Deadline overruns
// come back as Timeout, context cancellation as Cancelled.
func runStep(ctx context.Context, env Env, step Step, input map[string]any) (map[string]any, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	out, err := invokeStep(ctx, env, step, input)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, lserror.Timeout(step.Timeout)
		case errors.Is(err, context.Canceled):
			return nil, lserror.Cancelled()
		}
		return nil, err
	}
	// A step that ran to completion after its context expired still counts
	// as timed out; the deadline is a hard bound on the step.
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, lserror.Timeout(step.Timeout)
		}
		return nil, lserror.Cancelled()
	}
	return out, nil
}

func invokeStep(ctx context.Context, env Env, step Step, input map[string]any) (map[string]any, error) {
	switch step.Kind {
	case StepTool:
		params := step.Params
		if params == nil {
			params = input
		}
		out, err := env.InvokeTool(ctx, step.Tool, params)
		if err != nil {
			return nil, err
		}
		if m, ok := out.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"output": out}, nil
	case StepAgent:
		return env.InvokeAgent(ctx, step.Agent, input)
	case StepFunction:
		if step.Func == nil {
			return nil, lserror.Validation("func", "function step "+step.Name+" has no function")
		}
		return step.Func(ctx, input)
	}
	return nil, lserror.Validation("kind", "unknown step kind "+string(step.Kind))
}

// validateSteps rejects structurally broken step lists at registration.
func validateSteps(steps []Step) error {
	for i, s := range steps {
		if s.Name == "" {
			return lserror.Validation("steps", "step without a name at index "+strconv.Itoa(i))
		}
		switch s.Kind {
		case StepTool:
			if s.Tool == "" {
				return lserror.Validation("steps", "tool step "+s.Name+" names no tool")
			}
		case StepAgent:
			if s.Agent == "" {
				return lserror.Validation("steps", "agent step "+s.Name+" names no agent")
			}
		case StepFunction:
			if s.Func == nil {
				return lserror.Validation("steps", "function step "+s.Name+" has no function")
			}
		default:
			return lserror.Validation("steps", "step "+s.Name+" has unknown kind "+string(s.Kind))
		}
	}
	return nil
}
