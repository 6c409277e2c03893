// Package llmspell assembles the execution kernel's infrastructure from a
// single configuration value. Embedded use and the daemon share this path,
// so every component is created in one place and in one order.
package llmspell

import (
	"fmt"
	"sort"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/agents"
	"github.com/llmspell-dev/llmspell/pkg/config"
	"github.com/llmspell-dev/llmspell/pkg/events"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/memory"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/state"
	"github.com/llmspell-dev/llmspell/pkg/templates"
	"github.com/llmspell-dev/llmspell/pkg/tenancy"
	"github.com/llmspell-dev/llmspell/pkg/tools"
	"github.com/llmspell-dev/llmspell/pkg/vectorstore"
)

// ProviderManager is an opaque registry of named capabilities. Script
// engines and model providers register here without the runtime knowing
// their concrete types.
type ProviderManager struct {
	mu        sync.RWMutex
	providers map[string]any
}

// NewProviderManager creates an empty provider manager.
func NewProviderManager() *ProviderManager {
	return &ProviderManager{providers: make(map[string]any)}
}

// Register stores a capability under name, rejecting duplicates.
func (pm *ProviderManager) Register(name string, capability any) error {
	if name == "" {
		return lserror.Validation("name", "provider name must not be empty")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, exists := pm.providers[name]; exists {
		return lserror.Validation("name", "provider already registered: "+name)
	}
	pm.providers[name] = capability
	return nil
}

// Get returns the capability registered under name.
func (pm *ProviderManager) Get(name string) (any, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	capability, ok := pm.providers[name]
	if !ok {
		return nil, lserror.NotFound("provider " + name)
	}
	return capability, nil
}

// Names returns registered provider names, sorted.
func (pm *ProviderManager) Names() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.providers))
	for name := range pm.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComponentRegistry is the script-facing view of registered components.
// Script globals consult it; the executor consults the infrastructure
// registries. The two tool sets must stay identical.
type ComponentRegistry struct {
	mu    sync.RWMutex
	tools map[string]tools.Tool
}

// NewComponentRegistry creates an empty component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{tools: make(map[string]tools.Tool)}
}

// RegisterTool exposes a tool to scripts.
func (cr *ComponentRegistry) RegisterTool(tool tools.Tool) error {
	if tool.Name == "" {
		return lserror.Validation("name", "tool name must not be empty")
	}
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, exists := cr.tools[tool.Name]; exists {
		return lserror.Validation("name", "tool already registered: "+tool.Name)
	}
	cr.tools[tool.Name] = tool
	return nil
}

// Tool returns a script-visible tool by name.
func (cr *ComponentRegistry) Tool(name string) (tools.Tool, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	tool, ok := cr.tools[name]
	if !ok {
		return tools.Tool{}, lserror.NotFound("tool " + name)
	}
	return tool, nil
}

// ToolNames returns the script-visible tool names, sorted.
func (cr *ComponentRegistry) ToolNames() []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	names := make([]string, 0, len(cr.tools))
	for name := range cr.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolCount returns the number of script-visible tools.
func (cr *ComponentRegistry) ToolCount() int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return len(cr.tools)
}

// Infrastructure holds every built component. Fields are wired once by
// Build and then read-only.
type Infrastructure struct {
	Config     *config.Config
	Providers  *ProviderManager
	State      *state.Manager
	Sessions   *sessions.Manager
	Janitor    *sessions.Janitor
	Tenants    *tenancy.Registry
	Vectors    vectorstore.VectorStore
	Memory     *memory.Manager
	Tools      *tools.Registry
	Agents     *agents.Registry
	Factory    *agents.Factory
	Hooks      *hooks.Pipeline
	Events     *events.Bus
	Executor   *executor.Executor
	Templates  *templates.Engine
	Components *ComponentRegistry
}

// Build constructs the full infrastructure in dependency order. Any
// failure names the component that could not be built.
func Build(cfg *config.Config) (*Infrastructure, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	infra := &Infrastructure{Config: cfg}

	infra.Providers = NewProviderManager()

	backend, err := buildStateBackend(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("build state manager: %w", err)
	}
	infra.State = state.NewManager(backend)

	infra.Sessions = sessions.NewManager(infra.State)
	janitor, err := sessions.NewJanitor(infra.Sessions, cfg.Sessions.CleanupSchedule, cfg.Sessions.MaxIdle)
	if err != nil {
		infra.close()
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	infra.Janitor = janitor

	if err := buildRAG(infra, cfg); err != nil {
		infra.close()
		return nil, fmt.Errorf("build RAG: %w", err)
	}

	mem, err := memory.NewManager(infra.Vectors, memory.Config{
		MaxMemories:         cfg.Memory.MaxMemories,
		SimilarityThreshold: float32(cfg.Memory.SimilarityThreshold),
	})
	if err != nil {
		infra.close()
		return nil, fmt.Errorf("build memory manager: %w", err)
	}
	infra.Memory = mem

	infra.Tools = tools.NewRegistry()
	if err := tools.RegisterBuiltins(infra.Tools); err != nil {
		infra.close()
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	infra.Hooks = hooks.NewPipeline(hooks.NewRegistry(), hooks.NewBreakerManager(breakerConfig(cfg.Hooks)), hooks.NewPerformanceMonitor())
	infra.Events = events.NewBus()

	infra.Agents = agents.NewRegistry()
	infra.Factory = agents.NewFactory(infra.Agents, infra.Tools, infra.Hooks)
	if err := agents.RegisterBuiltinTypes(infra.Agents, infra.Factory); err != nil {
		infra.close()
		return nil, fmt.Errorf("build agent registry: %w", err)
	}

	timeouts := executor.NewTimeoutManager(cfg.Timeouts.Default, cfg.Timeouts.Max)
	timeouts.WarnThreshold = cfg.Timeouts.WarnThreshold
	infra.Executor = executor.New(infra.Hooks, timeouts, infra.State, infra.Tools, infra.Agents)

	engine, err := templates.NewEngine(infra.Executor, infra.Sessions)
	if err != nil {
		infra.close()
		return nil, fmt.Errorf("build workflow factory: %w", err)
	}
	if err := templates.RegisterBuiltins(engine, infra.Agents, infra.Factory); err != nil {
		infra.close()
		return nil, fmt.Errorf("build workflow factory: %w", err)
	}
	infra.Templates = engine

	infra.Components = NewComponentRegistry()
	for _, tool := range infra.Tools.List() {
		if err := infra.Components.RegisterTool(tool); err != nil {
			infra.close()
			return nil, fmt.Errorf("build component registry: %w", err)
		}
	}
	if got, want := infra.Components.ToolCount(), infra.Tools.Count(); got != want {
		infra.close()
		return nil, fmt.Errorf("build component registry: %w",
			lserror.Internal(fmt.Errorf("tool registries diverged: %d components vs %d tools", got, want)))
	}

	return infra, nil
}

// Close releases backends and stops background work.
func (i *Infrastructure) Close() error {
	return i.close()
}

func (i *Infrastructure) close() error {
	var firstErr error
	if i.Janitor != nil {
		i.Janitor.Stop()
	}
	if i.Events != nil {
		i.Events.Close()
	}
	if i.Vectors != nil {
		if err := i.Vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if i.State != nil {
		if err := i.State.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildStateBackend(cfg config.StateConfig) (state.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return state.NewMemoryBackend(), nil
	case "bolt":
		return state.NewBoltBackend(state.BoltOptions{
			Path:          cfg.Path,
			Compression:   cfg.Compression,
			CacheCapacity: cfg.CacheCapacity,
		})
	case "sqlite":
		return state.NewSQLiteBackend(cfg.Path)
	case "postgres":
		return state.NewPostgresBackend(cfg.DSN)
	case "redis":
		return state.NewRedisBackend(state.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, lserror.Validation("state.backend", "unknown backend: "+cfg.Backend)
	}
}

func buildRAG(infra *Infrastructure, cfg *config.Config) error {
	dims := cfg.Vector.Dimensions
	if dims <= 0 {
		dims = vectorstore.DefaultDimensions
	}
	store := vectorstore.NewMemoryStore(vectorstore.WithDimensions(dims))

	if len(cfg.Tenants) == 0 {
		infra.Vectors = store
		return nil
	}

	infra.Tenants = tenancy.NewRegistry()
	for _, tc := range cfg.Tenants {
		if _, err := infra.Tenants.Register(tc.ID, tenancy.Limits{
			MaxVectors:          tc.MaxVectors,
			MaxDimensions:       tc.MaxDimensions,
			MaxStorageBytes:     tc.MaxStorageBytes,
			MaxQueriesPerSecond: tc.MaxQueriesPerSecond,
		}); err != nil {
			return err
		}
	}
	infra.Vectors = vectorstore.NewTenantStore(infra.Tenants, store)
	return nil
}

func breakerConfig(cfg config.HooksConfig) hooks.BreakerConfig {
	bc := hooks.DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.SlowThreshold > 0 {
		bc.SlowCallThreshold = cfg.SlowThreshold
	}
	if cfg.SlowDuration > 0 {
		bc.SlowCallDuration = cfg.SlowDuration
	}
	if cfg.OpenDuration > 0 {
		bc.OpenDuration = cfg.OpenDuration
	}
	if cfg.SuccessThreshold > 0 {
		bc.SuccessThreshold = cfg.SuccessThreshold
	}
	return bc
}
