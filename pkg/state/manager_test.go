package state

import (
	"context"
	"testing"
	"time"
)

func TestManagerSetGet(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	ctx := context.Background()
	scope := SessionScope("sess-1")

	if err := mgr.Set(ctx, scope, "greeting", "hello"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, ok, err := mgr.Get(ctx, scope, "greeting")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || v != "hello" {
		t.Errorf("Get() = (%v, %v), want (hello, true)", v, ok)
	}

	// Missing key reports not-present without error.
	_, ok, err = mgr.Get(ctx, scope, "absent")
	if err != nil || ok {
		t.Errorf("Get(absent) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestManagerVersioning(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	ctx := context.Background()
	scope := GlobalScope()

	for i, v := range []string{"one", "two", "three"} {
		if err := mgr.Set(ctx, scope, "k", v); err != nil {
			t.Fatalf("Set #%d error = %v", i, err)
		}
	}

	vv, ok, err := mgr.GetVersioned(ctx, scope, "k")
	if err != nil || !ok {
		t.Fatalf("GetVersioned() = (ok=%v, err=%v)", ok, err)
	}
	if vv.Version != 3 {
		t.Errorf("version = %d, want 3", vv.Version)
	}
	if vv.Value != "three" {
		t.Errorf("current value = %v, want three", vv.Value)
	}
	if vv.IngestionTime.IsZero() || vv.EventTime.IsZero() {
		t.Error("timestamps must be stamped")
	}

	stats, err := mgr.StatsForScope(ctx, scope)
	if err != nil {
		t.Fatalf("StatsForScope() error = %v", err)
	}
	if stats.Keys != 1 || stats.Versions != 3 {
		t.Errorf("stats = %+v, want 1 key / 3 versions", stats)
	}
}

func TestManagerEventTime(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	ctx := context.Background()

	asserted := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := mgr.SetWithEventTime(ctx, GlobalScope(), "k", 1, asserted); err != nil {
		t.Fatalf("SetWithEventTime() error = %v", err)
	}

	vv, _, err := mgr.GetVersioned(ctx, GlobalScope(), "k")
	if err != nil {
		t.Fatalf("GetVersioned() error = %v", err)
	}
	if !vv.EventTime.Equal(asserted) {
		t.Errorf("event time = %v, want %v", vv.EventTime, asserted)
	}
	if !vv.IngestionTime.After(asserted) {
		t.Errorf("ingestion time %v should be after asserted event time", vv.IngestionTime)
	}
}

func TestManagerDeleteBeforeKeepsCurrent(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr := NewManager(NewMemoryBackend(), withClock(func() time.Time { return clock }))
	ctx := context.Background()
	scope := AgentScope("a1")

	// Three versions at t0, t1, t2.
	for _, v := range []int{1, 2, 3} {
		if err := mgr.Set(ctx, scope, "k", v); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		clock = clock.Add(time.Hour)
	}

	// Cutoff after every write: history goes, the current version stays even
	// though its ingestion time predates the cutoff.
	n, err := mgr.DeleteBefore(ctx, scope, clock.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}

	vv, ok, err := mgr.GetVersioned(ctx, scope, "k")
	if err != nil || !ok {
		t.Fatalf("current version lost after retention: ok=%v err=%v", ok, err)
	}
	if vv.Version != 3 || vv.Value != float64(3) {
		t.Errorf("current = v%d %v, want v3 3", vv.Version, vv.Value)
	}

	stats, _ := mgr.StatsForScope(ctx, scope)
	if stats.Versions != 1 {
		t.Errorf("versions after retention = %d, want 1", stats.Versions)
	}
}

func TestManagerListAndDeleteScope(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	ctx := context.Background()
	sess := SessionScope("s1")
	other := SessionScope("s2")

	for _, k := range []string{"a", "b", "c"} {
		if err := mgr.Set(ctx, sess, k, k); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := mgr.Set(ctx, other, "a", "other"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	keys, err := mgr.ListKeys(ctx, sess)
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("ListKeys() = %v, want 3 keys", keys)
	}

	n, err := mgr.DeleteScope(ctx, sess)
	if err != nil {
		t.Fatalf("DeleteScope() error = %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteScope() = %d, want 3", n)
	}

	// Sibling scope untouched.
	if v, ok, _ := mgr.Get(ctx, other, "a"); !ok || v != "other" {
		t.Errorf("sibling scope affected: (%v, %v)", v, ok)
	}
}

func TestManagerGetAll(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	ctx := context.Background()
	scope := CustomScope("vars")

	want := map[string]any{"x": "1", "y": "2"}
	for k, v := range want {
		if err := mgr.Set(ctx, scope, k, v); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	got, err := mgr.GetAll(ctx, scope)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("GetAll() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("GetAll()[%s] = %v, want %v", k, got[k], v)
		}
	}
}
