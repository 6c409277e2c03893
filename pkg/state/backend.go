package state

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by backends when a storage key has no value.
var ErrKeyNotFound = errors.New("key not found")

// Backend is the durable key/value face the state manager runs on. Keys are
// flat storage keys produced by Scope.StorageKey. Each call is atomic:
// either the mutation is fully applied or the previous value remains.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Get retrieves the value under key.
	// Returns ErrKeyNotFound if the key has no value.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the value under key.
	// Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// ListKeys returns every storage key starting with prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every key starting with prefix and reports the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Stats reports backend-level counters.
	Stats(ctx context.Context) (BackendStats, error)

	// Close releases resources held by the backend.
	Close() error
}

// BackendStats summarizes a backend for the stats surfaces.
type BackendStats struct {
	// Name identifies the backend implementation ("memory", "bolt", ...).
	Name string `json:"name"`
	// Keys is the number of stored keys.
	Keys int64 `json:"keys"`
	// Bytes is the approximate stored payload size, if the backend tracks it.
	Bytes int64 `json:"bytes"`
}
