package tenancy

import (
	"context"

	"github.com/llmspell-dev/llmspell/pkg/state"
)

// StateManager wraps the state manager with tenant isolation: every
// operation resolves the active tenant from the context and lands in a
// storage region only that tenant can reach. A key written by one tenant
// does not exist for any other.
type StateManager struct {
	registry *Registry
	state    *state.Manager
}

// NewStateManager wraps stateMgr with tenant isolation.
func NewStateManager(registry *Registry, stateMgr *state.Manager) *StateManager {
	return &StateManager{registry: registry, state: stateMgr}
}

// tenantScope folds the caller's scope into the tenant's private region.
// The original scope travels inside the key, keeping the tenant id the
// only routing component.
func tenantScope(t *Tenant) state.Scope {
	return state.CustomScope("tenant-" + t.ID)
}

func tenantKey(scope state.Scope, key string) string {
	return scope.StorageKey(key)
}

// Set writes a value into the tenant's region.
func (m *StateManager) Set(ctx context.Context, scope state.Scope, key string, value any) error {
	t, err := m.registry.Resolve(ctx)
	if err != nil {
		return err
	}
	return m.state.Set(ctx, tenantScope(t), tenantKey(scope, key), value)
}

// Get reads a value from the tenant's region. Keys owned by other tenants
// come back as absent.
func (m *StateManager) Get(ctx context.Context, scope state.Scope, key string) (any, bool, error) {
	t, err := m.registry.Resolve(ctx)
	if err != nil {
		return nil, false, err
	}
	return m.state.Get(ctx, tenantScope(t), tenantKey(scope, key))
}

// Delete removes a key from the tenant's region.
func (m *StateManager) Delete(ctx context.Context, scope state.Scope, key string) (bool, error) {
	t, err := m.registry.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return m.state.Delete(ctx, tenantScope(t), tenantKey(scope, key))
}

// ListKeys lists the tenant's keys under a scope.
func (m *StateManager) ListKeys(ctx context.Context, scope state.Scope) ([]string, error) {
	t, err := m.registry.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := m.state.ListKeys(ctx, tenantScope(t))
	if err != nil {
		return nil, err
	}
	prefix := scope.Prefix()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

// DeleteScope drops everything the tenant stored under a scope.
func (m *StateManager) DeleteScope(ctx context.Context, scope state.Scope) (int, error) {
	t, err := m.registry.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	keys, err := m.ListKeys(ctx, scope)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, k := range keys {
		ok, err := m.state.Delete(ctx, tenantScope(t), tenantKey(scope, k))
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}
