// Package tenancy isolates namespaces and enforces quotas over state and
// vector storage. Every tenant-scoped operation carries the active tenant
// through the context.
package tenancy

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Limits are the per-tenant quotas. Zero values mean unlimited.
type Limits struct {
	MaxVectors          int     `yaml:"max_vectors" json:"max_vectors"`
	MaxDimensions       int     `yaml:"max_dimensions" json:"max_dimensions"`
	MaxStorageBytes     int64   `yaml:"max_storage_bytes" json:"max_storage_bytes"`
	MaxQueriesPerSecond float64 `yaml:"max_queries_per_second" json:"max_queries_per_second"`
}

// Usage is a point-in-time snapshot of a tenant's consumption.
type Usage struct {
	Vectors      int   `json:"vectors"`
	StorageBytes int64 `json:"storage_bytes"`
	Queries      int64 `json:"queries"`
}

// Tenant is one registered namespace.
type Tenant struct {
	ID     string
	Limits Limits

	mu      sync.Mutex
	active  bool
	usage   Usage
	limiter *rate.Limiter
}

// Active reports whether the tenant may read and write.
func (t *Tenant) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Usage snapshots the tenant's counters.
func (t *Tenant) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Registry is the tenant table.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewRegistry creates an empty tenant registry.
func NewRegistry() *Registry {
	return &Registry{tenants: make(map[string]*Tenant)}
}

// Register adds an active tenant with its limits.
func (r *Registry) Register(id string, limits Limits) (*Tenant, error) {
	if id == "" {
		return nil, lserror.Validation("id", "tenant id must not be empty")
	}
	if strings.ContainsRune(id, ':') {
		return nil, lserror.Validation("id", "tenant id must not contain ':'")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[id]; exists {
		return nil, lserror.Validation("id", "tenant already registered: "+id)
	}
	t := &Tenant{ID: id, Limits: limits, active: true}
	if limits.MaxQueriesPerSecond > 0 {
		burst := int(limits.MaxQueriesPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(limits.MaxQueriesPerSecond), burst)
	}
	r.tenants[id] = t
	return t, nil
}

// Get returns a tenant by id.
func (r *Registry) Get(id string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.tenants[id]
	if !exists {
		return nil, lserror.NotFound("tenant " + id)
	}
	return t, nil
}

// SetActive flips a tenant's active flag.
func (r *Registry) SetActive(id string, active bool) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.active = active
	t.mu.Unlock()
	return nil
}

// List returns the tenant ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the active tenant carried by the context. Unknown and
// inactive tenants are rejected here so every quota path shares the check.
func (r *Registry) Resolve(ctx context.Context) (*Tenant, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return nil, lserror.Validation("tenant", "no tenant in context")
	}
	t, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		return nil, lserror.Validation("tenant", "tenant "+id+" is inactive")
	}
	return t, nil
}

// AllowQuery consumes one query from the tenant's rate budget and counts
// the query.
func (t *Tenant) AllowQuery() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limiter != nil && !t.limiter.Allow() {
		return lserror.ResourceLimit("queries_per_second",
			int64(t.Limits.MaxQueriesPerSecond), int64(t.Limits.MaxQueriesPerSecond)+1)
	}
	t.usage.Queries++
	return nil
}

// ReserveVectors checks and books the insertion of count vectors of dims
// dimensions and total size bytes. Either the whole batch fits or nothing
// is booked.
func (t *Tenant) ReserveVectors(count, dims int, bytes int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Limits.MaxDimensions > 0 && dims > t.Limits.MaxDimensions {
		return lserror.ResourceLimit("dimensions", int64(t.Limits.MaxDimensions), int64(dims))
	}
	if t.Limits.MaxVectors > 0 && t.usage.Vectors+count > t.Limits.MaxVectors {
		return lserror.ResourceLimit("vectors",
			int64(t.Limits.MaxVectors), int64(t.usage.Vectors+count))
	}
	if t.Limits.MaxStorageBytes > 0 && t.usage.StorageBytes+bytes > t.Limits.MaxStorageBytes {
		return lserror.ResourceLimit("storage_bytes",
			t.Limits.MaxStorageBytes, t.usage.StorageBytes+bytes)
	}
	t.usage.Vectors += count
	t.usage.StorageBytes += bytes
	return nil
}

// ReleaseVectors returns capacity after a delete.
func (t *Tenant) ReleaseVectors(count int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Vectors -= count
	if t.usage.Vectors < 0 {
		t.usage.Vectors = 0
	}
	t.usage.StorageBytes -= bytes
	if t.usage.StorageBytes < 0 {
		t.usage.StorageBytes = 0
	}
}

type ctxKey struct{}

// WithTenant returns a context carrying the active tenant id.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant id from a context.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
