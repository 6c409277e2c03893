package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// VersionedValue is one write of a state entry. EventTime is asserted by the
// caller; IngestionTime is stamped from the wall clock at write.
type VersionedValue struct {
	Value         any       `json:"value"`
	Version       uint64    `json:"version"`
	EventTime     time.Time `json:"event_time"`
	IngestionTime time.Time `json:"ingestion_time"`
}

// record is the stored shape for one (scope, key): the current version plus
// the superseded ones, oldest first.
type record struct {
	Current VersionedValue   `json:"current"`
	History []VersionedValue `json:"history,omitempty"`
}

// ScopeStats summarizes one scope for the stats surfaces.
type ScopeStats struct {
	Scope    string `json:"scope"`
	Keys     int    `json:"keys"`
	Versions int    `json:"versions"`
}

// writeLocks is the stripe count for per-key write serialization.
const writeLocks = 64

// Manager is the scoped, versioned state store the rest of the kernel talks
// to. Writes to the same (scope, key) are serialized; writes to different
// keys proceed independently. A bounded read-through cache keeps hot records
// decoded.
type Manager struct {
	backend Backend

	locks [writeLocks]sync.Mutex

	cacheCap int
	cacheMu  sync.Mutex
	cache    map[string]*record

	now func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCacheCapacity bounds the decoded-record cache. Zero disables caching.
func WithCacheCapacity(n int) ManagerOption {
	return func(m *Manager) { m.cacheCap = n }
}

// withClock overrides the wall clock; used by retention tests.
func withClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a state manager over the given backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:  backend,
		cacheCap: 1024,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cacheCap > 0 {
		m.cache = make(map[string]*record, m.cacheCap)
	}
	return m
}

func (m *Manager) lockFor(storageKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(storageKey))
	return &m.locks[h.Sum32()%writeLocks]
}

func (m *Manager) cacheGet(storageKey string) (*record, bool) {
	if m.cache == nil {
		return nil, false
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	rec, ok := m.cache[storageKey]
	return rec, ok
}

func (m *Manager) cachePut(storageKey string, rec *record) {
	if m.cache == nil {
		return
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if len(m.cache) >= m.cacheCap {
		for k := range m.cache {
			delete(m.cache, k)
			break
		}
	}
	m.cache[storageKey] = rec
}

func (m *Manager) cacheDrop(storageKey string) {
	if m.cache == nil {
		return
	}
	m.cacheMu.Lock()
	delete(m.cache, storageKey)
	m.cacheMu.Unlock()
}

func (m *Manager) load(ctx context.Context, storageKey string) (*record, error) {
	if rec, ok := m.cacheGet(storageKey); ok {
		return rec, nil
	}
	raw, err := m.backend.Get(ctx, storageKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lserror.Backend(err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, lserror.Backend(fmt.Errorf("corrupt record at %s: %w", storageKey, err))
	}
	m.cachePut(storageKey, &rec)
	return &rec, nil
}

func (m *Manager) store(ctx context.Context, storageKey string, rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return lserror.Backend(fmt.Errorf("encode record: %w", err))
	}
	if err := m.backend.Set(ctx, storageKey, raw); err != nil {
		m.cacheDrop(storageKey)
		return lserror.Backend(err)
	}
	m.cachePut(storageKey, rec)
	return nil
}

// Set writes value under (scope, key), stamping the event time from the wall
// clock. Values must be JSON-compatible.
func (m *Manager) Set(ctx context.Context, scope Scope, key string, value any) error {
	return m.SetWithEventTime(ctx, scope, key, value, time.Time{})
}

// SetWithEventTime writes value with a caller-asserted event time. A zero
// eventTime defaults to the ingestion time.
func (m *Manager) SetWithEventTime(ctx context.Context, scope Scope, key string, value any, eventTime time.Time) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if key == "" {
		return lserror.Validation("key", "key must not be empty")
	}

	storageKey := scope.StorageKey(key)
	lock := m.lockFor(storageKey)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.load(ctx, storageKey)
	if err != nil {
		return err
	}

	ingestion := m.now().UTC()
	if eventTime.IsZero() {
		eventTime = ingestion
	}
	next := VersionedValue{
		Value:         value,
		Version:       1,
		EventTime:     eventTime.UTC(),
		IngestionTime: ingestion,
	}
	fresh := record{Current: next}
	if rec != nil {
		fresh.Current.Version = rec.Current.Version + 1
		fresh.History = append(append([]VersionedValue{}, rec.History...), rec.Current)
	}
	return m.store(ctx, storageKey, &fresh)
}

// Get returns the current value under (scope, key). The second return is
// false when the key has never been written.
func (m *Manager) Get(ctx context.Context, scope Scope, key string) (any, bool, error) {
	vv, ok, err := m.GetVersioned(ctx, scope, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return vv.Value, true, nil
}

// GetVersioned returns the current version record under (scope, key).
func (m *Manager) GetVersioned(ctx context.Context, scope Scope, key string) (VersionedValue, bool, error) {
	if err := scope.Validate(); err != nil {
		return VersionedValue{}, false, err
	}
	rec, err := m.load(ctx, scope.StorageKey(key))
	if err != nil || rec == nil {
		return VersionedValue{}, false, err
	}
	return rec.Current, true, nil
}

// Delete removes (scope, key) and all its versions. Returns true if the key
// existed.
func (m *Manager) Delete(ctx context.Context, scope Scope, key string) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}
	storageKey := scope.StorageKey(key)
	lock := m.lockFor(storageKey)
	lock.Lock()
	defer lock.Unlock()

	m.cacheDrop(storageKey)
	existed, err := m.backend.Delete(ctx, storageKey)
	if err != nil {
		return false, lserror.Backend(err)
	}
	return existed, nil
}

// ListKeys enumerates the keys written under scope, without the scope prefix.
func (m *Manager) ListKeys(ctx context.Context, scope Scope) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	prefix := scope.Prefix()
	storageKeys, err := m.backend.ListKeys(ctx, prefix)
	if err != nil {
		return nil, lserror.Backend(err)
	}
	keys := make([]string, 0, len(storageKeys))
	for _, sk := range storageKeys {
		keys = append(keys, sk[len(prefix):])
	}
	return keys, nil
}

// GetAll returns every current (key, value) pair in scope.
func (m *Manager) GetAll(ctx context.Context, scope Scope) (map[string]any, error) {
	keys, err := m.ListKeys(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := m.Get(ctx, scope, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// DeleteScope removes every key under scope and reports the count.
func (m *Manager) DeleteScope(ctx context.Context, scope Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	keys, err := m.backend.ListKeys(ctx, scope.Prefix())
	if err != nil {
		return 0, lserror.Backend(err)
	}
	for _, k := range keys {
		m.cacheDrop(k)
	}
	n, err := m.backend.DeletePrefix(ctx, scope.Prefix())
	if err != nil {
		return 0, lserror.Backend(err)
	}
	return n, nil
}

// DeleteBefore drops superseded versions in scope whose ingestion time is
// before cutoff. The current version of every key survives regardless of its
// ingestion time, so the latest write stays retrievable.
func (m *Manager) DeleteBefore(ctx context.Context, scope Scope, cutoff time.Time) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	storageKeys, err := m.backend.ListKeys(ctx, scope.Prefix())
	if err != nil {
		return 0, lserror.Backend(err)
	}

	removed := 0
	for _, sk := range storageKeys {
		lock := m.lockFor(sk)
		lock.Lock()
		rec, err := m.load(ctx, sk)
		if err != nil {
			lock.Unlock()
			return removed, err
		}
		if rec == nil || len(rec.History) == 0 {
			lock.Unlock()
			continue
		}
		kept := rec.History[:0:0]
		for _, vv := range rec.History {
			if vv.IngestionTime.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, vv)
		}
		if len(kept) != len(rec.History) {
			trimmed := record{Current: rec.Current, History: kept}
			if err := m.store(ctx, sk, &trimmed); err != nil {
				lock.Unlock()
				return removed, err
			}
		}
		lock.Unlock()
	}
	return removed, nil
}

// StatsForScope counts keys and stored versions in scope.
func (m *Manager) StatsForScope(ctx context.Context, scope Scope) (ScopeStats, error) {
	if err := scope.Validate(); err != nil {
		return ScopeStats{}, err
	}
	storageKeys, err := m.backend.ListKeys(ctx, scope.Prefix())
	if err != nil {
		return ScopeStats{}, lserror.Backend(err)
	}
	stats := ScopeStats{Scope: scope.String(), Keys: len(storageKeys)}
	for _, sk := range storageKeys {
		rec, err := m.load(ctx, sk)
		if err != nil {
			return ScopeStats{}, err
		}
		if rec != nil {
			stats.Versions += 1 + len(rec.History)
		}
	}
	return stats, nil
}

// Stats reports the underlying backend counters.
func (m *Manager) Stats(ctx context.Context) (BackendStats, error) {
	stats, err := m.backend.Stats(ctx)
	if err != nil {
		return BackendStats{}, lserror.Backend(err)
	}
	return stats, nil
}

// Close releases the backend.
func (m *Manager) Close() error { return m.backend.Close() }
