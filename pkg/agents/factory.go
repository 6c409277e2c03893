package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sandbox"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

// Factory builds live agents. Creation runs the before_create and
// after_create hook phases; tool access flows through the descriptor's
// allow-list and the tool's security level.
type Factory struct {
	registry *Registry
	tools    *tools.Registry
	pipeline *hooks.Pipeline
}

// NewFactory wires a factory to its registries and hook pipeline.
func NewFactory(registry *Registry, toolReg *tools.Registry, pipeline *hooks.Pipeline) *Factory {
	return &Factory{registry: registry, tools: toolReg, pipeline: pipeline}
}

// Create validates the descriptor, fires before_create hooks, builds the
// agent through its type factory, registers the instance and fires
// after_create hooks.
func (f *Factory) Create(ctx context.Context, d Descriptor) (Agent, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	// Declared creation hooks must exist before anything runs.
	for _, hookID := range d.CreationHooks {
		if !f.hookRegistered(hookID) {
			return nil, lserror.NotFound("creation hook " + hookID)
		}
	}
	factory, err := f.registry.FactoryFor(d.Type)
	if err != nil {
		return nil, err
	}

	hc := &hooks.HookContext{
		Phase:       hooks.PhaseBeforeCreate,
		ComponentID: d.ID,
		Data:        map[string]any{"type": d.Type, "name": d.Name},
	}
	f.pipeline.Run(ctx, hc)

	agent, err := factory(d)
	if err != nil {
		f.pipeline.Run(ctx, &hooks.HookContext{
			Phase: hooks.PhaseError, ComponentID: d.ID, Err: err,
		})
		return nil, err
	}
	if err := f.registry.add(agent); err != nil {
		return nil, err
	}

	hc.Phase = hooks.PhaseAfterCreate
	f.pipeline.Run(ctx, hc)
	log.Printf("[Agents] created %s (type=%s)", d.ID, d.Type)
	return agent, nil
}

// ToolFor resolves a tool on behalf of an agent, enforcing the allow-list
// and the security-level ordering.
func (f *Factory) ToolFor(d Descriptor, name string) (tools.Tool, error) {
	tool, err := f.tools.Get(name)
	if err != nil {
		return tools.Tool{}, err
	}
	if !d.CanUseTool(name) {
		return tools.Tool{}, lserror.Validation("allowed_tools",
			fmt.Sprintf("agent %s is not allowed to use tool %s", d.ID, name))
	}
	if !d.SecurityLevel().Allows(tool.SecurityLevel) {
		return tools.Tool{}, lserror.Validation("security_level",
			fmt.Sprintf("tool %s requires %s, agent %s has %s",
				name, tool.SecurityLevel, d.ID, d.SecurityLevel()))
	}
	return tool, nil
}

// InvokeTool validates input against the tool schema and runs it under the
// agent's grants.
func (f *Factory) InvokeTool(ctx context.Context, d Descriptor, name string, input map[string]any, ec *tools.ExecContext) (any, error) {
	tool, err := f.ToolFor(d, name)
	if err != nil {
		return nil, err
	}
	args, err := tool.Schema.Validate(input)
	if err != nil {
		return nil, err
	}
	return tool.Handler(ctx, args, ec)
}

func (f *Factory) hookRegistered(id string) bool {
	for _, phase := range []hooks.Phase{hooks.PhaseBeforeCreate, hooks.PhaseAfterCreate} {
		for _, reg := range f.pipeline.Registry().HooksFor(phase) {
			if reg.ID == id {
				return true
			}
		}
	}
	return false
}

// RegisterBuiltinTypes adds the agent types every runtime ships with:
//
//   - "echo" returns its input unchanged, keyed under "echo".
//   - "tool-runner" invokes one allowed tool per turn, reading "tool" and
//     "params" from its input.
func RegisterBuiltinTypes(registry *Registry, factory *Factory) error {
	if err := registry.RegisterType("echo", func(d Descriptor) (Agent, error) {
		return &funcAgent{d: d, fn: func(_ context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"echo": input}, nil
		}}, nil
	}); err != nil {
		return err
	}
	return registry.RegisterType("tool-runner", func(d Descriptor) (Agent, error) {
		return &funcAgent{d: d, fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			name, _ := input["tool"].(string)
			if name == "" {
				return nil, lserror.Validation("tool", "tool-runner input needs a tool name")
			}
			params, _ := input["params"].(map[string]any)
			ec := &tools.ExecContext{Sandbox: sandboxFromInput(d, input)}
			out, err := factory.InvokeTool(ctx, d, name, params, ec)
			if err != nil {
				return nil, err
			}
			return map[string]any{"tool": name, "output": out}, nil
		}}, nil
	})
}

// sandboxFromInput builds the per-turn sandbox for a tool-runner agent.
// The work directory rides along in the input so callers can scope file
// access per invocation.
func sandboxFromInput(d Descriptor, input map[string]any) *sandbox.Context {
	sb := sandbox.NewContext(d.ID, "")
	sb.Limits = d.Limits
	if wd, ok := input["workdir"].(string); ok && wd != "" {
		sb.WorkDir = wd
		sb.AllowedPaths = []string{wd}
	}
	if d.Privileged() {
		sb.AllowedPaths = []string{sandbox.Wildcard}
		sb.AllowedDomains = []string{sandbox.Wildcard}
		sb.AllowedEnv = []string{sandbox.Wildcard}
	}
	return sb
}

type funcAgent struct {
	d  Descriptor
	fn func(context.Context, map[string]any) (map[string]any, error)
}

func (a *funcAgent) Descriptor() Descriptor { return a.d }

func (a *funcAgent) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return a.fn(ctx, input)
}
