package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

const defaultTopK = 10

// MemoryStore is an in-memory exact-scan store partitioned by scope. It
// is the reference backend for tests and small deployments; it is not
// built for large corpora.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]Entry
	dims   int
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithDimensions overrides the default embedding width.
func WithDimensions(dims int) MemoryOption {
	return func(m *MemoryStore) { m.dims = dims }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		scopes: make(map[string]map[string]Entry),
		dims:   DefaultDimensions,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dimensions returns the embedding width the store accepts.
func (m *MemoryStore) Dimensions() int { return m.dims }

// Insert stores the entries. Validation runs over the whole batch before
// anything is written, so a bad entry never leaves a partial insert.
func (m *MemoryStore) Insert(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i := range entries {
		if err := ValidateEntry(&entries[i], m.dims); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		stored := copyEntry(e)
		if stored.IngestionTime.IsZero() {
			stored.IngestionTime = now
		}
		if stored.EventTime.IsZero() {
			stored.EventTime = stored.IngestionTime
		}
		part, exists := m.scopes[e.Scope]
		if !exists {
			part = make(map[string]Entry)
			m.scopes[e.Scope] = part
		}
		part[e.ID] = stored
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// Search scans the query's scope (or all scopes when empty) and returns
// the top-K matches ordered by descending score.
func (m *MemoryStore) Search(ctx context.Context, query Query) ([]Result, error) {
	if err := ValidateQuery(&query, m.dims); err != nil {
		return nil, err
	}
	if query.K == 0 {
		query.K = defaultTopK
	}
	if query.Metric == "" {
		query.Metric = MetricCosine
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var candidates []Result
	for scope, part := range m.scopes {
		if query.Scope != "" && scope != query.Scope {
			continue
		}
		for _, e := range part {
			if query.ExcludeExpired && e.Expired(now) {
				continue
			}
			if query.EventRange != nil && !query.EventRange.Contains(e.EventTime) {
				continue
			}
			if query.IngestionRange != nil && !query.IngestionRange.Contains(e.IngestionTime) {
				continue
			}
			if !matchesFilter(e.Metadata, query.Filter) {
				continue
			}
			score := similarity(query.Vector, e.Vector, query.Metric)
			if query.Threshold > 0 && score < query.Threshold {
				continue
			}
			r := Result{ID: e.ID, Score: score}
			if query.IncludeMetadata {
				r.Metadata = copyMetadata(e.Metadata)
			}
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > query.K {
		candidates = candidates[:query.K]
	}
	return candidates, nil
}

// DeleteScope drops the scope's partition.
func (m *MemoryStore) DeleteScope(ctx context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	part, exists := m.scopes[scope]
	if !exists {
		return 0, nil
	}
	delete(m.scopes, scope)
	return len(part), nil
}

// Stats reports totals across all scopes.
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Scopes: len(m.scopes)}
	for _, part := range m.scopes {
		s.Vectors += len(part)
		for _, e := range part {
			s.StorageBytes += EntryBytes(e)
		}
	}
	return s, nil
}

// StatsForScope reports totals for one scope. An unknown scope is an
// empty snapshot, not an error.
func (m *MemoryStore) StatsForScope(ctx context.Context, scope string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	part, exists := m.scopes[scope]
	if !exists {
		return Stats{}, nil
	}
	s := Stats{Vectors: len(part), Scopes: 1}
	for _, e := range part {
		s.StorageBytes += EntryBytes(e)
	}
	return s, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, exists := metadata[key]
		if !exists || got != want {
			return false
		}
	}
	return true
}

func similarity(query, stored []float32, metric Metric) float32 {
	switch metric {
	case MetricDotProduct:
		return dotProduct(query, stored)
	case MetricEuclidean:
		// Distance folded into a similarity so higher is always better.
		return 1.0 / (1.0 + euclideanDistance(query, stored))
	default:
		return cosineSimilarity(query, stored)
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sqrt(sum)
}

func sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func copyEntry(e Entry) Entry {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	e.Metadata = copyMetadata(e.Metadata)
	return e
}

func copyMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
