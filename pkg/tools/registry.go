package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Registry is the tool catalog. Names are flat and unique; registration of
// a duplicate name fails rather than silently overriding.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. The descriptor is validated before it is admitted.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return lserror.Validation("name", "tool name must not be empty")
	}
	if !tool.SecurityLevel.Valid() {
		return lserror.Validation("security_level", "unknown security level "+string(tool.SecurityLevel))
	}
	if tool.Handler == nil {
		return lserror.Validation("handler", "tool has no handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return lserror.Validation("name", "tool already registered: "+tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Unregister removes a tool by name. Returns true if it was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	if !exists {
		return Tool{}, lserror.NotFound("tool " + name)
	}
	return tool, nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.tools, func(Tool) bool { return true })
}

// ByCategory returns the tools in one category, sorted by name.
func (r *Registry) ByCategory(category string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.tools, func(t Tool) bool { return t.Category == category })
}

// Search returns tools whose name or description contains query,
// case-insensitively, sorted by name.
func (r *Registry) Search(query string) []Tool {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.tools, func(t Tool) bool {
		return strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Description), q)
	})
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func sortedValues(m map[string]Tool, keep func(Tool) bool) []Tool {
	out := make([]Tool, 0, len(m))
	for _, t := range m {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
