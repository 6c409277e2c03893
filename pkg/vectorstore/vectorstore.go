// Package vectorstore defines the storage contract used by retrieval
// subsystems. Index algorithms stay behind the interface; only the storage
// operations are fixed.
package vectorstore

import (
	"context"
	"strconv"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// DefaultDimensions is the embedding width assumed when a store is built
// without an explicit dimension.
const DefaultDimensions = 384

// Entry is one stored vector. Event time is when the underlying fact
// happened; ingestion time is when the entry reached the store.
type Entry struct {
	ID            string         `json:"id"`
	Vector        []float32      `json:"vector"`
	Scope         string         `json:"scope"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	EventTime     time.Time      `json:"event_time"`
	IngestionTime time.Time      `json:"ingestion_time"`
	TTL           time.Duration  `json:"ttl,omitempty"`
}

// Expired reports whether the entry's TTL had elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.IngestionTime.Add(e.TTL))
}

// Metric selects how query and entry vectors are compared.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dot_product"
)

// TimeRange bounds a timestamp. Zero ends are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// Query describes one similarity search.
type Query struct {
	Vector          []float32
	Scope           string
	K               int
	Metric          Metric
	Filter          map[string]any
	Threshold       float32
	EventRange      *TimeRange
	IngestionRange  *TimeRange
	ExcludeExpired  bool
	IncludeMetadata bool
}

// Result is one ranked match. Metadata is populated only when the query
// asked for it.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats is a point-in-time snapshot of a store or one of its scopes.
type Stats struct {
	Vectors      int   `json:"vectors"`
	Scopes       int   `json:"scopes"`
	StorageBytes int64 `json:"storage_bytes"`
}

// VectorStore is the uniform storage face over vector persistence.
type VectorStore interface {
	// Insert stores the entries and returns their ids in input order.
	// Either all entries land or none do.
	Insert(ctx context.Context, entries []Entry) ([]string, error)

	// Search returns the ranked matches for the query, best first.
	Search(ctx context.Context, query Query) ([]Result, error)

	// DeleteScope drops every entry under the scope and returns the count.
	DeleteScope(ctx context.Context, scope string) (int, error)

	// Stats reports totals across all scopes.
	Stats(ctx context.Context) (Stats, error)

	// StatsForScope reports totals for a single scope.
	StatsForScope(ctx context.Context, scope string) (Stats, error)

	// Close releases backend resources.
	Close() error
}

// ValidateEntry rejects entries that cannot be stored.
func ValidateEntry(e *Entry, dims int) error {
	if e.ID == "" {
		return lserror.Validation("id", "entry id must not be empty")
	}
	if len(e.Vector) == 0 {
		return lserror.Validation("vector", "entry vector must not be empty")
	}
	if len(e.Vector) != dims {
		return lserror.Validation("vector",
			"dimension mismatch: store expects "+strconv.Itoa(dims)+", got "+strconv.Itoa(len(e.Vector)))
	}
	if e.Scope == "" {
		return lserror.Validation("scope", "entry scope must not be empty")
	}
	return nil
}

// ValidateQuery rejects queries that cannot be answered.
func ValidateQuery(q *Query, dims int) error {
	if len(q.Vector) != dims {
		return lserror.Validation("vector",
			"dimension mismatch: store expects "+strconv.Itoa(dims)+", got "+strconv.Itoa(len(q.Vector)))
	}
	if q.K < 0 {
		return lserror.Validation("k", "k must not be negative")
	}
	switch q.Metric {
	case "", MetricCosine, MetricEuclidean, MetricDotProduct:
	default:
		return lserror.Validation("metric", "unknown metric: "+string(q.Metric))
	}
	return nil
}

// EntryBytes estimates the storage cost of an entry for quota accounting.
func EntryBytes(e Entry) int64 {
	bytes := int64(len(e.Vector)) * 4
	bytes += int64(len(e.ID) + len(e.Scope))
	for k, v := range e.Metadata {
		bytes += int64(len(k))
		if s, ok := v.(string); ok {
			bytes += int64(len(s))
		} else {
			bytes += 8
		}
	}
	return bytes
}
