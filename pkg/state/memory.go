package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is the in-process Backend used for tests, embedded runs and
// ephemeral kernels. Values are copied on the way in and out.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	bytes int64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Set stores value under key.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.data[key]; ok {
		b.bytes -= int64(len(old))
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[key] = cp
	b.bytes += int64(len(cp))
	return nil
}

// Get retrieves the value under key.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Delete removes the value under key.
func (b *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.data[key]
	if !ok {
		return false, nil
	}
	b.bytes -= int64(len(v))
	delete(b.data, key)
	return true, nil
}

// ListKeys returns every key starting with prefix, sorted.
func (b *MemoryBackend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (b *MemoryBackend) DeletePrefix(_ context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for k, v := range b.data {
		if strings.HasPrefix(k, prefix) {
			b.bytes -= int64(len(v))
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

// Stats reports key and byte counts.
func (b *MemoryBackend) Stats(_ context.Context) (BackendStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BackendStats{Name: "memory", Keys: int64(len(b.data)), Bytes: b.bytes}, nil
}

// Close is a no-op for the memory backend.
func (b *MemoryBackend) Close() error { return nil }
