package sessions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/state"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	stateMgr := state.NewManager(state.NewMemoryBackend())
	t.Cleanup(func() { stateMgr.Close() })
	return NewManager(stateMgr)
}

func TestGetOrCreateMapsJupyterID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s1, err := m.GetOrCreate(ctx, "jup-1", "kernel-1")
	if err != nil {
		t.Fatal(err)
	}
	if !s1.Active() || s1.ExecutionCount != 0 {
		t.Errorf("new session = %+v", s1)
	}

	// Same Jupyter id maps to the same session.
	s2, err := m.GetOrCreate(ctx, "jup-1", "kernel-1")
	if err != nil {
		t.Fatal(err)
	}
	if s2.ID != s1.ID {
		t.Errorf("GetOrCreate created a second session: %s vs %s", s1.ID, s2.ID)
	}

	byJup, err := m.ByJupyterID("jup-1")
	if err != nil || byJup.ID != s1.ID {
		t.Errorf("ByJupyterID = %v, %v", byJup, err)
	}
	if _, err := m.ByJupyterID("jup-unknown"); lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("unknown jupyter id error = %v", err)
	}
}

func TestRecordExecution(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s, _ := m.GetOrCreate(ctx, "jup-1", "k")

	for want := 1; want <= 3; want++ {
		count, err := m.RecordExecution(ctx, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if count != want {
			t.Errorf("execution count = %d, want %d", count, want)
		}
	}

	if err := m.Suspend(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordExecution(ctx, s.ID); lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("execution on suspended session error = %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s, _ := m.GetOrCreate(ctx, "jup-1", "k")

	if err := m.Suspend(ctx, s.ID); err != nil || s.Status != StatusSuspended {
		t.Fatalf("Suspend: %v, status=%s", err, s.Status)
	}
	if err := m.Activate(ctx, s.ID); err != nil || s.Status != StatusActive {
		t.Fatalf("Activate: %v, status=%s", err, s.Status)
	}
	if err := m.Complete(ctx, s.ID); err != nil || s.Status != StatusCompleted {
		t.Fatalf("Complete: %v, status=%s", err, s.Status)
	}
	// Completed is terminal.
	if err := m.Activate(ctx, s.ID); lserror.KindOf(err) != lserror.KindValidation {
		t.Errorf("reactivating completed session error = %v", err)
	}
}

func TestLifecyclePersistedToState(t *testing.T) {
	stateMgr := state.NewManager(state.NewMemoryBackend())
	defer stateMgr.Close()
	m := NewManager(stateMgr)
	ctx := context.Background()

	s, _ := m.GetOrCreate(ctx, "jup-1", "k")
	if _, err := m.RecordExecution(ctx, s.ID); err != nil {
		t.Fatal(err)
	}

	v, ok, err := stateMgr.Get(ctx, state.SessionScope(s.ID), "lifecycle")
	if err != nil || !ok {
		t.Fatalf("lifecycle not persisted: ok=%v err=%v", ok, err)
	}
	rec := v.(map[string]any)
	if rec["execution_count"] != 1 || rec["status"] != "active" {
		t.Errorf("persisted lifecycle = %v", rec)
	}
}

func TestCleanupInactive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	old, _ := m.GetOrCreate(ctx, "jup-old", "k")
	fresh, _ := m.GetOrCreate(ctx, "jup-fresh", "k")

	// Age the first session by moving the clock, then touch the second.
	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := m.RecordExecution(ctx, fresh.ID); err != nil {
		t.Fatal(err)
	}

	cleaned, err := m.CleanupInactive(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if cleaned != 1 {
		t.Fatalf("cleaned = %d, want 1", cleaned)
	}
	if old.Status != StatusCompleted {
		t.Error("idle session not completed")
	}
	if fresh.Status != StatusActive {
		t.Error("active session was swept")
	}
}

func TestArtifactsDedupeAndVersioning(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s, _ := m.GetOrCreate(ctx, "jup-1", "k")

	a1, err := m.StoreArtifact(ctx, s.ID, ArtifactToolOutput, "report", []byte("v1"), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Identical bytes dedupe to the same artifact.
	dup, err := m.StoreArtifact(ctx, s.ID, ArtifactToolOutput, "report", []byte("v1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if dup.ID != a1.ID {
		t.Error("identical payload was not deduplicated")
	}

	// New bytes under the same name bump the version.
	a2, err := m.StoreArtifact(ctx, s.ID, ArtifactToolOutput, "report", []byte("v2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if a2.Version != 2 {
		t.Errorf("second version = %d, want 2", a2.Version)
	}

	list := m.ListArtifacts(s.ID)
	if len(list) != 2 {
		t.Fatalf("ListArtifacts = %d items, want 2", len(list))
	}
	// Newest first.
	if list[0].ID != a2.ID || list[1].ID != a1.ID {
		t.Errorf("artifact order = [%s %s]", list[0].Name, list[1].Name)
	}

	got, err := m.GetArtifact(s.ID, a1.ID)
	if err != nil || string(got.Bytes) != "v1" {
		t.Errorf("GetArtifact = %v, %v", got, err)
	}
	if _, err := m.GetArtifact(s.ID, "missing"); lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("missing artifact error = %v", err)
	}
}

func TestArtifactRequiresSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.StoreArtifact(context.Background(), "ghost", ArtifactCustom, "x", []byte("y"), nil)
	if lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}

func newReplayFixture(t *testing.T) (*Manager, *hooks.Pipeline, *Session) {
	t.Helper()
	m := newTestManager(t)
	pipeline := hooks.NewPipeline(hooks.NewRegistry(),
		hooks.NewBreakerManager(hooks.DefaultBreakerConfig()),
		hooks.NewPerformanceMonitor())
	s, err := m.GetOrCreate(context.Background(), "jup-1", "k")
	if err != nil {
		t.Fatal(err)
	}
	return m, pipeline, s
}

func TestReplayWithoutExecutionsFails(t *testing.T) {
	m, pipeline, s := newReplayFixture(t)
	_, err := m.Replay(context.Background(), s.ID, pipeline)
	if err == nil || !strings.Contains(err.Error(), "No hook executions found") {
		t.Errorf("Replay error = %v, want 'No hook executions found'", err)
	}
}

func TestReplayRerunsRecordedHooks(t *testing.T) {
	m, pipeline, s := newReplayFixture(t)
	ctx := context.Background()

	runs := 0
	pipeline.Registry().RegisterNamed("audit", hooks.PhaseBeforeExecute, 0,
		func(context.Context, *hooks.HookContext) error { runs++; return nil })

	pipeline.SetRecorder(m.Recorder(ctx, s.ID))
	pipeline.Run(ctx, &hooks.HookContext{Phase: hooks.PhaseBeforeExecute, ComponentID: "tool:calc"})
	pipeline.Run(ctx, &hooks.HookContext{Phase: hooks.PhaseBeforeExecute, ComponentID: "tool:calc"})
	pipeline.SetRecorder(nil)

	if got := m.HookExecutions(s.ID); len(got) != 2 {
		t.Fatalf("recorded %d executions, want 2", len(got))
	}

	replayed, err := m.Replay(ctx, s.ID, pipeline)
	if err != nil {
		t.Fatal(err)
	}
	if len(replayed) != 2 {
		t.Fatalf("replayed %d executions, want 2", len(replayed))
	}
	if runs != 4 {
		t.Errorf("hook ran %d times, want 4 (2 live + 2 replay)", runs)
	}

	// Unregistered hooks come back as skipped, not as failures.
	pipeline.Registry().Unregister("audit")
	replayed, err = m.Replay(ctx, s.ID, pipeline)
	if err != nil {
		t.Fatal(err)
	}
	for _, exec := range replayed {
		if !exec.Skipped {
			t.Errorf("replay of unregistered hook = %+v, want skipped", exec)
		}
	}
}

func TestReplayUnknownSession(t *testing.T) {
	m, pipeline, _ := newReplayFixture(t)
	_, err := m.Replay(context.Background(), "ghost", pipeline)
	if lserror.KindOf(err) != lserror.KindNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestJanitor(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s, _ := m.GetOrCreate(ctx, "jup-1", "k")

	if _, err := NewJanitor(m, "not a schedule", time.Hour); err == nil {
		t.Error("bad cron spec accepted")
	}
	if _, err := NewJanitor(m, "*/5 * * * *", 0); err == nil {
		t.Error("non-positive max idle accepted")
	}

	j, err := NewJanitor(m, "*/5 * * * *", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	cleaned, err := j.Sweep(ctx)
	if err != nil || cleaned != 1 {
		t.Errorf("Sweep = %d, %v, want 1 cleaned", cleaned, err)
	}
	if s.Status != StatusCompleted {
		t.Error("janitor sweep did not complete the idle session")
	}
}
