package agents

import (
	"sort"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// FactoryFunc builds an agent of one type from its descriptor.
type FactoryFunc func(Descriptor) (Agent, error)

// Registry holds agent type factories and the live agent instances built
// from them. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FactoryFunc
	instances map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FactoryFunc),
		instances: make(map[string]Agent),
	}
}

// RegisterType adds a factory for an agent type.
func (r *Registry) RegisterType(agentType string, factory FactoryFunc) error {
	if agentType == "" {
		return lserror.Validation("type", "agent type must not be empty")
	}
	if factory == nil {
		return lserror.Validation("factory", "nil factory for type "+agentType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[agentType]; exists {
		return lserror.Validation("type", "agent type already registered: "+agentType)
	}
	r.factories[agentType] = factory
	return nil
}

// FactoryFor returns the factory for an agent type.
func (r *Registry) FactoryFor(agentType string) (FactoryFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, exists := r.factories[agentType]
	if !exists {
		return nil, lserror.NotFound("agent type " + agentType)
	}
	return factory, nil
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// add stores a live instance under its descriptor id.
func (r *Registry) add(agent Agent) error {
	id := agent.Descriptor().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[id]; exists {
		return lserror.Validation("id", "agent already exists: "+id)
	}
	r.instances[id] = agent
	return nil
}

// Get returns a live agent by id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, exists := r.instances[id]
	if !exists {
		return nil, lserror.NotFound("agent " + id)
	}
	return agent, nil
}

// Remove drops a live agent. Returns true if it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[id]; !exists {
		return false
	}
	delete(r.instances, id)
	return true
}

// List returns the live agent ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.instances))
	for id := range r.instances {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
