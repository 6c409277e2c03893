package vectorstore

import (
	"context"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/tenancy"
)

// TenantStore wraps a VectorStore with namespace isolation and quota
// enforcement. Every operation resolves the active tenant from the
// context; scopes are prefixed with the tenant id so one tenant's entries
// are unreachable from another's queries.
type TenantStore struct {
	registry *tenancy.Registry
	inner    VectorStore
}

// NewTenantStore wraps inner with tenant enforcement backed by registry.
func NewTenantStore(registry *tenancy.Registry, inner VectorStore) *TenantStore {
	return &TenantStore{registry: registry, inner: inner}
}

func tenantScope(t *tenancy.Tenant, scope string) string {
	return "tenant:" + t.ID + ":" + scope
}

// Insert books quota for the whole batch before touching the inner store.
// A quota violation or inner failure leaves usage exactly as it was.
func (s *TenantStore) Insert(ctx context.Context, entries []Entry) ([]string, error) {
	t, err := s.registry.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	dims := 0
	var bytes int64
	prefixed := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Scope == "" {
			return nil, lserror.Validation("scope", "entry scope must not be empty")
		}
		if len(e.Vector) > dims {
			dims = len(e.Vector)
		}
		bytes += EntryBytes(e)
		e.Scope = tenantScope(t, e.Scope)
		prefixed[i] = e
	}

	if err := t.ReserveVectors(len(entries), dims, bytes); err != nil {
		return nil, err
	}
	ids, err := s.inner.Insert(ctx, prefixed)
	if err != nil {
		t.ReleaseVectors(len(entries), bytes)
		return nil, err
	}
	observability.RecordVectorInserts(t.ID, len(ids))
	return ids, nil
}

// Search charges the tenant's query budget, then searches only inside the
// tenant's namespace.
func (s *TenantStore) Search(ctx context.Context, query Query) ([]Result, error) {
	t, err := s.registry.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if query.Scope == "" {
		return nil, lserror.Validation("scope", "tenant queries must name a scope")
	}
	if err := t.AllowQuery(); err != nil {
		return nil, err
	}
	query.Scope = tenantScope(t, query.Scope)
	return s.inner.Search(ctx, query)
}

// DeleteScope drops the tenant's scope and returns the freed capacity to
// the quota.
func (s *TenantStore) DeleteScope(ctx context.Context, scope string) (int, error) {
	t, err := s.registry.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	inner := tenantScope(t, scope)
	before, err := s.inner.StatsForScope(ctx, inner)
	if err != nil {
		return 0, err
	}
	n, err := s.inner.DeleteScope(ctx, inner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.ReleaseVectors(before.Vectors, before.StorageBytes)
	}
	return n, nil
}

// Stats reports the tenant's booked usage rather than global store totals.
func (s *TenantStore) Stats(ctx context.Context) (Stats, error) {
	t, err := s.registry.Resolve(ctx)
	if err != nil {
		return Stats{}, err
	}
	u := t.Usage()
	return Stats{Vectors: u.Vectors, StorageBytes: u.StorageBytes}, nil
}

// StatsForScope reports totals for one of the tenant's scopes.
func (s *TenantStore) StatsForScope(ctx context.Context, scope string) (Stats, error) {
	t, err := s.registry.Resolve(ctx)
	if err != nil {
		return Stats{}, err
	}
	return s.inner.StatsForScope(ctx, tenantScope(t, scope))
}

// Close closes the wrapped store.
func (s *TenantStore) Close() error { return s.inner.Close() }
