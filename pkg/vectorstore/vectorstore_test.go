package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(WithDimensions(3))
}

func entry(id, scope string, vector []float32) Entry {
	return Entry{ID: id, Scope: scope, Vector: vector}
}

func TestMemoryInsertAndSearch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ids, err := store.Insert(ctx, []Entry{
		entry("a", "docs", []float32{1, 0, 0}),
		entry("b", "docs", []float32{0.9, 0.1, 0}),
		entry("c", "docs", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("Insert ids = %v, want [a b c]", ids)
	}

	results, err := store.Search(ctx, Query{Vector: []float32{1, 0, 0}, Scope: "docs", K: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("ranking = [%s %s], want [a b]", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

func TestMemoryInsertValidation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	tests := []struct {
		name  string
		batch []Entry
	}{
		{"empty id", []Entry{entry("", "docs", []float32{1, 0, 0})}},
		{"empty scope", []Entry{entry("a", "", []float32{1, 0, 0})}},
		{"wrong dimensions", []Entry{entry("a", "docs", []float32{1, 0})}},
		{"bad entry mid-batch", []Entry{
			entry("good", "docs", []float32{1, 0, 0}),
			entry("bad", "docs", []float32{1}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Insert(ctx, tt.batch); lserror.KindOf(err) != lserror.KindValidation {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}

	// The rejected batches must not have landed partially.
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Vectors != 0 {
		t.Errorf("store holds %d vectors after rejected inserts, want 0", stats.Vectors)
	}
}

func TestMemorySearchScopePartition(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, []Entry{
		entry("a", "alpha", []float32{1, 0, 0}),
		entry("b", "beta", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := store.Search(ctx, Query{Vector: []float32{1, 0, 0}, Scope: "alpha"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("scoped search = %v, want only a", results)
	}

	// An empty scope searches everything.
	results, err = store.Search(ctx, Query{Vector: []float32{1, 0, 0}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("unscoped search returned %d results, want 2", len(results))
	}
}

func TestMemorySearchFilterAndThreshold(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, []Entry{
		{ID: "pub", Scope: "docs", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"status": "published"}},
		{ID: "draft", Scope: "docs", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"status": "draft"}},
		{ID: "far", Scope: "docs", Vector: []float32{0, 0, 1}, Metadata: map[string]any{"status": "published"}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := store.Search(ctx, Query{
		Vector:          []float32{1, 0, 0},
		Scope:           "docs",
		Filter:          map[string]any{"status": "published"},
		Threshold:       0.5,
		IncludeMetadata: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "pub" {
		t.Fatalf("filtered search = %v, want only pub", results)
	}
	if results[0].Metadata["status"] != "published" {
		t.Errorf("metadata not returned: %v", results[0].Metadata)
	}

	// Metadata stays out of the results unless asked for.
	results, _ = store.Search(ctx, Query{Vector: []float32{1, 0, 0}, Scope: "docs", K: 1})
	if results[0].Metadata != nil {
		t.Errorf("metadata returned without IncludeMetadata: %v", results[0].Metadata)
	}
}

func TestMemorySearchBitemporal(t *testing.T) {
	store := newTestStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	ctx := context.Background()

	if _, err := store.Insert(ctx, []Entry{
		{ID: "old", Scope: "docs", Vector: []float32{1, 0, 0}, EventTime: base.Add(-48 * time.Hour)},
		{ID: "new", Scope: "docs", Vector: []float32{1, 0, 0}, EventTime: base.Add(-1 * time.Hour)},
		{ID: "ttl", Scope: "docs", Vector: []float32{1, 0, 0}, TTL: time.Minute},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := store.Search(ctx, Query{
		Vector:     []float32{1, 0, 0},
		Scope:      "docs",
		EventRange: &TimeRange{From: base.Add(-2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	ids := resultIDs(results)
	if len(ids) != 2 || ids[0] == "old" || ids[1] == "old" {
		t.Errorf("event-range search = %v, want new and ttl only", ids)
	}

	// After the TTL elapses the expired entry drops out when excluded.
	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	results, err = store.Search(ctx, Query{
		Vector:         []float32{1, 0, 0},
		Scope:          "docs",
		ExcludeExpired: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.ID == "ttl" {
			t.Error("expired entry returned with ExcludeExpired")
		}
	}

	// Without ExcludeExpired the entry is still visible.
	results, _ = store.Search(ctx, Query{Vector: []float32{1, 0, 0}, Scope: "docs"})
	if len(results) != 3 {
		t.Errorf("got %d results without ExcludeExpired, want 3", len(results))
	}
}

func TestMemorySearchMetrics(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, []Entry{
		entry("near", "docs", []float32{1, 0, 0}),
		entry("far", "docs", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for _, metric := range []Metric{MetricCosine, MetricEuclidean, MetricDotProduct} {
		t.Run(string(metric), func(t *testing.T) {
			results, err := store.Search(ctx, Query{
				Vector: []float32{1, 0, 0},
				Scope:  "docs",
				Metric: metric,
			})
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(results) == 0 || results[0].ID != "near" {
				t.Errorf("metric %s ranked %v, want near first", metric, resultIDs(results))
			}
		})
	}

	if _, err := store.Search(ctx, Query{Vector: []float32{1, 0, 0}, Metric: "hamming"}); lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("unknown metric: got %v, want validation error", err)
	}
}

func TestMemoryDeleteScopeAndStats(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, []Entry{
		entry("a", "alpha", []float32{1, 0, 0}),
		entry("b", "alpha", []float32{0, 1, 0}),
		entry("c", "beta", []float32{0, 0, 1}),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	stats, _ := store.Stats(ctx)
	if stats.Vectors != 3 || stats.Scopes != 2 || stats.StorageBytes == 0 {
		t.Errorf("Stats = %+v, want 3 vectors over 2 scopes", stats)
	}

	scoped, _ := store.StatsForScope(ctx, "alpha")
	if scoped.Vectors != 2 {
		t.Errorf("StatsForScope(alpha).Vectors = %d, want 2", scoped.Vectors)
	}

	n, err := store.DeleteScope(ctx, "alpha")
	if err != nil {
		t.Fatalf("DeleteScope failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteScope = %d, want 2", n)
	}
	if n, _ := store.DeleteScope(ctx, "alpha"); n != 0 {
		t.Errorf("second DeleteScope = %d, want 0", n)
	}

	stats, _ = store.Stats(ctx)
	if stats.Vectors != 1 || stats.Scopes != 1 {
		t.Errorf("Stats after delete = %+v, want 1 vector in 1 scope", stats)
	}
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}
