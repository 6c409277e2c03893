package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// exerciseBackend runs the Backend contract against an implementation.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	// Missing key.
	if _, err := b.Get(ctx, "absent"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrKeyNotFound", err)
	}

	// Set / Get round trip.
	if err := b.Set(ctx, "agent:a1:k", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := b.Get(ctx, "agent:a1:k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("Get() = %s", got)
	}

	// Overwrite is atomic replacement.
	if err := b.Set(ctx, "agent:a1:k", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, _ = b.Get(ctx, "agent:a1:k")
	if string(got) != `{"v":2}` {
		t.Errorf("after overwrite Get() = %s", got)
	}

	// Prefix listing only sees matching keys.
	if err := b.Set(ctx, "agent:a1:k2", []byte(`2`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Set(ctx, "agent:a2:k", []byte(`3`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	keys, err := b.ListKeys(ctx, "agent:a1:")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListKeys() = %v, want 2 keys", keys)
	}

	// Delete reports existence.
	existed, err := b.Delete(ctx, "agent:a1:k2")
	if err != nil || !existed {
		t.Errorf("Delete() = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = b.Delete(ctx, "agent:a1:k2")
	if err != nil || existed {
		t.Errorf("second Delete() = (%v, %v), want (false, nil)", existed, err)
	}

	// DeletePrefix counts removals and spares siblings.
	n, err := b.DeletePrefix(ctx, "agent:a1:")
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeletePrefix() = %d, want 1", n)
	}
	if _, err := b.Get(ctx, "agent:a2:k"); err != nil {
		t.Errorf("sibling key removed: %v", err)
	}

	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Keys != 1 {
		t.Errorf("Stats().Keys = %d, want 1", stats.Keys)
	}
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	defer func() { _ = b.Close() }()
	exerciseBackend(t, b)
}

func TestBoltBackend(t *testing.T) {
	tests := []struct {
		name string
		opts BoltOptions
	}{
		{"plain", BoltOptions{}},
		{"compressed", BoltOptions{Compression: true}},
		{"cached", BoltOptions{CacheCapacity: 8}},
		{"compressed and cached", BoltOptions{Compression: true, CacheCapacity: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Path = filepath.Join(t.TempDir(), "state.db")
			b, err := NewBoltBackend(tt.opts)
			if err != nil {
				t.Fatalf("NewBoltBackend() error = %v", err)
			}
			defer func() { _ = b.Close() }()
			exerciseBackend(t, b)
		})
	}
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	defer func() { _ = b.Close() }()
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)

	b, err := NewRedisBackend(RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("NewRedisBackend() error = %v", err)
	}
	defer func() { _ = b.Close() }()
	exerciseBackend(t, b)
}

func TestRedisBackendRequiresAddr(t *testing.T) {
	if _, err := NewRedisBackend(RedisConfig{}); err == nil {
		t.Error("expected error for missing address")
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	b, err := NewBoltBackend(BoltOptions{Path: path, Compression: true})
	if err != nil {
		t.Fatalf("NewBoltBackend() error = %v", err)
	}
	if err := b.Set(ctx, "global:k", []byte("persisted")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b2, err := NewBoltBackend(BoltOptions{Path: path, Compression: true})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = b2.Close() }()
	got, err := b2.Get(ctx, "global:k")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() = %s, want persisted", got)
	}
}
