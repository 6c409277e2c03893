// Package memory is a session-scoped semantic memory on top of the
// vector store: content is remembered with its embedding and recalled by
// similarity.
package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/vectorstore"
)

// Config tunes a memory manager.
type Config struct {
	// MaxMemories caps stored memories per scope. Zero means 100.
	MaxMemories int `yaml:"max_memories"`
	// SimilarityThreshold floors recall scores. Zero means 0.7.
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
}

const (
	defaultMaxMemories = 100
	defaultThreshold   = 0.7

	contentKey = "content"
)

// Recalled is one remembered item with its similarity to the probe.
type Recalled struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
}

// Manager stores and recalls memories per scope.
type Manager struct {
	store     vectorstore.VectorStore
	max       int
	threshold float32
}

// NewManager wraps a vector store. The store's dimensionality governs
// accepted embeddings.
func NewManager(store vectorstore.VectorStore, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, lserror.Validation("store", "memory manager needs a vector store")
	}
	max := cfg.MaxMemories
	if max <= 0 {
		max = defaultMaxMemories
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Manager{store: store, max: max, threshold: threshold}, nil
}

// Remember stores content under the scope. The per-scope cap is
// enforced before insertion.
func (m *Manager) Remember(ctx context.Context, scope, content string, embedding []float32, metadata map[string]any) (string, error) {
	if scope == "" {
		return "", lserror.Validation("scope", "memory scope must not be empty")
	}
	if content == "" {
		return "", lserror.Validation("content", "memory content must not be empty")
	}

	stats, err := m.store.StatsForScope(ctx, scope)
	if err != nil {
		return "", err
	}
	if stats.Vectors >= m.max {
		return "", lserror.ResourceLimit("memories", int64(m.max), int64(stats.Vectors))
	}

	meta := map[string]any{contentKey: content}
	for k, v := range metadata {
		if k != contentKey {
			meta[k] = v
		}
	}
	ids, err := m.store.Insert(ctx, []vectorstore.Entry{{
		ID:       uuid.New().String(),
		Vector:   embedding,
		Scope:    scope,
		Metadata: meta,
	}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// Recall returns up to k memories similar to the probe embedding, best
// first, filtered by the similarity threshold.
func (m *Manager) Recall(ctx context.Context, scope string, probe []float32, k int) ([]Recalled, error) {
	if scope == "" {
		return nil, lserror.Validation("scope", "memory scope must not be empty")
	}
	if k <= 0 {
		k = 5
	}
	results, err := m.store.Search(ctx, vectorstore.Query{
		Vector:          probe,
		Scope:           scope,
		K:               k,
		Threshold:       m.threshold,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	recalled := make([]Recalled, 0, len(results))
	for _, r := range results {
		content, _ := r.Metadata[contentKey].(string)
		meta := make(map[string]any, len(r.Metadata))
		for key, v := range r.Metadata {
			if key != contentKey {
				meta[key] = v
			}
		}
		recalled = append(recalled, Recalled{
			ID:       r.ID,
			Content:  content,
			Score:    r.Score,
			Metadata: meta,
		})
	}
	return recalled, nil
}

// Forget drops every memory under the scope and returns how many there
// were.
func (m *Manager) Forget(ctx context.Context, scope string) (int, error) {
	if scope == "" {
		return 0, lserror.Validation("scope", "memory scope must not be empty")
	}
	return m.store.DeleteScope(ctx, scope)
}
