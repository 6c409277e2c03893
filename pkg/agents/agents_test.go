package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

func newTestFactory(t *testing.T) (*Factory, *Registry, *hooks.Pipeline) {
	t.Helper()
	pipeline := hooks.NewPipeline(hooks.NewRegistry(),
		hooks.NewBreakerManager(hooks.DefaultBreakerConfig()),
		hooks.NewPerformanceMonitor())
	registry := NewRegistry()
	toolReg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(toolReg); err != nil {
		t.Fatal(err)
	}
	factory := NewFactory(registry, toolReg, pipeline)
	if err := RegisterBuiltinTypes(registry, factory); err != nil {
		t.Fatal(err)
	}
	return factory, registry, pipeline
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		ok   bool
	}{
		{"valid", Descriptor{ID: "a1", Type: "echo"}, true},
		{"empty id", Descriptor{Type: "echo"}, false},
		{"colon in id", Descriptor{ID: "a:1", Type: "echo"}, false},
		{"empty type", Descriptor{ID: "a1"}, false},
		{"wildcard alone", Descriptor{ID: "a1", Type: "echo", AllowedTools: []string{"*"}}, true},
		{"wildcard mixed", Descriptor{ID: "a1", Type: "echo", AllowedTools: []string{"*", "calculator"}}, false},
	}
	for _, tt := range tests {
		if err := tt.d.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestDescriptorSecurityLevel(t *testing.T) {
	wild := Descriptor{ID: "a", Type: "echo", AllowedTools: []string{"*"}}
	if !wild.Privileged() || wild.SecurityLevel() != tools.LevelPrivileged {
		t.Error("wildcard descriptor must be privileged")
	}
	plain := Descriptor{ID: "a", Type: "echo", AllowedTools: []string{"calculator"}}
	if plain.Privileged() || plain.SecurityLevel() != tools.LevelRestricted {
		t.Error("listed descriptor must be restricted")
	}
	if !plain.CanUseTool("calculator") || plain.CanUseTool("file-reader") {
		t.Error("CanUseTool must follow the allow-list")
	}
}

func TestFactoryCreateFiresHooks(t *testing.T) {
	factory, registry, pipeline := newTestFactory(t)

	var phases []hooks.Phase
	for _, phase := range []hooks.Phase{hooks.PhaseBeforeCreate, hooks.PhaseAfterCreate} {
		p := phase
		pipeline.Registry().RegisterNamed(string(p), p, 0, func(_ context.Context, hc *hooks.HookContext) error {
			phases = append(phases, hc.Phase)
			return nil
		})
	}

	agent, err := factory.Create(context.Background(), Descriptor{ID: "a1", Type: "echo", Name: "Echo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(phases) != 2 || phases[0] != hooks.PhaseBeforeCreate || phases[1] != hooks.PhaseAfterCreate {
		t.Errorf("hook phases = %v", phases)
	}

	got, err := registry.Get("a1")
	if err != nil || got != agent {
		t.Errorf("registry.Get(a1) = %v, %v", got, err)
	}

	out, err := agent.Execute(context.Background(), map[string]any{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if out["echo"].(map[string]any)["k"] != "v" {
		t.Errorf("echo output = %v", out)
	}
}

func TestFactoryCreateUnknownType(t *testing.T) {
	factory, _, _ := newTestFactory(t)
	_, err := factory.Create(context.Background(), Descriptor{ID: "a1", Type: "clairvoyant"})
	if lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("error kind = %v, want not found", lserror.KindOf(err))
	}
}

func TestFactoryCreateDuplicateID(t *testing.T) {
	factory, _, _ := newTestFactory(t)
	d := Descriptor{ID: "a1", Type: "echo"}
	if _, err := factory.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	_, err := factory.Create(context.Background(), d)
	if lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("duplicate create error = %v, want validation", err)
	}
}

func TestFactoryCreateUnknownCreationHook(t *testing.T) {
	factory, _, _ := newTestFactory(t)
	_, err := factory.Create(context.Background(), Descriptor{
		ID: "a1", Type: "echo", CreationHooks: []string{"nonexistent"},
	})
	if lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("error kind = %v, want not found", lserror.KindOf(err))
	}
}

func TestToolAccessControl(t *testing.T) {
	factory, _, _ := newTestFactory(t)

	listed := Descriptor{ID: "a1", Type: "echo", AllowedTools: []string{"calculator"}}
	if _, err := factory.ToolFor(listed, "calculator"); err != nil {
		t.Errorf("listed tool denied: %v", err)
	}
	var lerr *lserror.Error
	if _, err := factory.ToolFor(listed, "file-reader"); !errors.As(err, &lerr) || lerr.Field != "allowed_tools" {
		t.Errorf("unlisted tool error = %v", err)
	}
	if _, err := factory.ToolFor(listed, "no-such-tool"); lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("missing tool error = %v", err)
	}

	wild := Descriptor{ID: "a2", Type: "echo", AllowedTools: []string{"*"}}
	for _, name := range []string{"calculator", "file-reader", "environment-reader"} {
		if _, err := factory.ToolFor(wild, name); err != nil {
			t.Errorf("wildcard denied %s: %v", name, err)
		}
	}
}

func TestToolRunnerAgent(t *testing.T) {
	factory, _, _ := newTestFactory(t)
	agent, err := factory.Create(context.Background(), Descriptor{
		ID: "runner", Type: "tool-runner", AllowedTools: []string{"calculator"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := agent.Execute(context.Background(), map[string]any{
		"tool":   "calculator",
		"params": map[string]any{"expression": "6 * 7"},
	})
	if err != nil {
		t.Fatal(err)
	}
	result := out["output"].(map[string]any)
	if result["value"].(float64) != 42 {
		t.Errorf("calculator via tool-runner = %v", result)
	}

	// Schema violations surface as validation errors.
	_, err = agent.Execute(context.Background(), map[string]any{
		"tool":   "calculator",
		"params": map[string]any{"expression": 12},
	})
	if lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("bad params error = %v, want validation", err)
	}

	// Tools outside the allow-list are denied.
	_, err = agent.Execute(context.Background(), map[string]any{
		"tool": "file-reader", "params": map[string]any{"path": "x"},
	})
	if lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("unlisted tool error = %v, want validation", err)
	}
}

func TestRegistryTypes(t *testing.T) {
	_, registry, _ := newTestFactory(t)
	types := registry.Types()
	if len(types) != 2 || types[0] != "echo" || types[1] != "tool-runner" {
		t.Errorf("Types() = %v", types)
	}
	if err := registry.RegisterType("echo", func(Descriptor) (Agent, error) { return nil, nil }); err == nil {
		t.Error("duplicate type registration succeeded")
	}
}
