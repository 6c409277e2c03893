package llmspell

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/config"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Engine executes script source for a session. Engines are opaque to the
// runtime; the echo engine ships as a stand-in until a real language
// binding is registered.
type Engine interface {
	Name() string
	Execute(ctx context.Context, sessionID, code string) (any, error)
}

// EngineRegistry maps engine names to implementations.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewEngineRegistry creates an empty engine registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{engines: make(map[string]Engine)}
}

// Register adds an engine, rejecting duplicates and empty names.
func (er *EngineRegistry) Register(engine Engine) error {
	name := engine.Name()
	if name == "" {
		return lserror.Validation("name", "engine name must not be empty")
	}
	er.mu.Lock()
	defer er.mu.Unlock()
	if _, exists := er.engines[name]; exists {
		return lserror.Validation("name", "engine already registered: "+name)
	}
	er.engines[name] = engine
	return nil
}

// Get returns the engine registered under name.
func (er *EngineRegistry) Get(name string) (Engine, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()
	engine, ok := er.engines[name]
	if !ok {
		return nil, lserror.NotFound("engine " + name)
	}
	return engine, nil
}

// Names returns registered engine names, sorted.
func (er *EngineRegistry) Names() []string {
	er.mu.RLock()
	defer er.mu.RUnlock()
	names := make([]string, 0, len(er.engines))
	for name := range er.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultEngine is the engine used when none is named.
const DefaultEngine = "echo"

// EchoEngine evaluates nothing: it returns the trimmed source as its
// result. Tests and the CLI exec path run against it.
type EchoEngine struct{}

// Name implements Engine.
func (EchoEngine) Name() string { return DefaultEngine }

// Execute implements Engine.
func (EchoEngine) Execute(ctx context.Context, sessionID, code string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, lserror.Cancelled()
	}
	return strings.TrimSpace(code), nil
}

// Runtime couples built infrastructure with the script engines. The
// kernel takes its executor and interpreter from here.
type Runtime struct {
	infra   *Infrastructure
	engines *EngineRegistry
}

// NewRuntime builds the infrastructure for cfg and registers the echo
// engine.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	infra, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	engines := NewEngineRegistry()
	if err := engines.Register(EchoEngine{}); err != nil {
		infra.close()
		return nil, err
	}
	return &Runtime{infra: infra, engines: engines}, nil
}

// Infrastructure returns the built components.
func (r *Runtime) Infrastructure() *Infrastructure { return r.infra }

// Executor returns the scheduler handle the kernel dispatches onto.
func (r *Runtime) Executor() *executor.Executor { return r.infra.Executor }

// Engines returns the script engine registry.
func (r *Runtime) Engines() *EngineRegistry { return r.engines }

// ExecuteScript runs code on the named engine; an empty name selects the
// default engine.
func (r *Runtime) ExecuteScript(ctx context.Context, engineName, sessionID, code string) (any, error) {
	if engineName == "" {
		engineName = DefaultEngine
	}
	engine, err := r.engines.Get(engineName)
	if err != nil {
		return nil, err
	}
	return engine.Execute(ctx, sessionID, code)
}

// Interpreter adapts the default engine to the kernel's interpreter
// signature.
func (r *Runtime) Interpreter() func(ctx context.Context, sessionID, code string) (any, error) {
	return func(ctx context.Context, sessionID, code string) (any, error) {
		return r.ExecuteScript(ctx, "", sessionID, code)
	}
}

// Close releases the runtime's infrastructure.
func (r *Runtime) Close() error { return r.infra.Close() }
