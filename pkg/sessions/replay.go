package sessions

import (
	"context"
	"log"

	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/state"
)

// Recorder returns a hook execution recorder bound to a session; install
// it on the pipeline while the session is driving executions.
func (m *Manager) Recorder(ctx context.Context, sessionID string) hooks.ExecutionRecorder {
	return func(exec hooks.HookExecution) {
		m.mu.Lock()
		m.hookLog[sessionID] = append(m.hookLog[sessionID], exec)
		logLen := len(m.hookLog[sessionID])
		m.mu.Unlock()

		if err := m.state.Set(ctx, state.SessionScope(sessionID), "hook_executions", logLen); err != nil {
			log.Printf("[Sessions] failed to persist hook execution count for %s: %v", sessionID, err)
		}
	}
}

// HookExecutions returns the recorded hook executions of a session in
// recording order.
func (m *Manager) HookExecutions(sessionID string) []hooks.HookExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hooks.HookExecution, len(m.hookLog[sessionID]))
	copy(out, m.hookLog[sessionID])
	return out
}

// Replay re-runs a session's recorded hook executions through the
// pipeline's registry, in their original order, and returns the fresh
// executions. Hooks that have been unregistered since recording are
// reported as skipped. A session with no recorded executions cannot be
// replayed.
func (m *Manager) Replay(ctx context.Context, sessionID string, pipeline *hooks.Pipeline) ([]hooks.HookExecution, error) {
	m.mu.RLock()
	_, exists := m.sessions[sessionID]
	recorded := make([]hooks.HookExecution, len(m.hookLog[sessionID]))
	copy(recorded, m.hookLog[sessionID])
	m.mu.RUnlock()

	if !exists {
		return nil, lserror.NotFound("session " + sessionID)
	}
	if len(recorded) == 0 {
		return nil, lserror.Validation("session",
			"No hook executions found for session "+sessionID)
	}

	replayed := make([]hooks.HookExecution, 0, len(recorded))
	for _, exec := range recorded {
		hc := &hooks.HookContext{
			Phase:         exec.Phase,
			ComponentID:   exec.ComponentID,
			CorrelationID: exec.CorrelationID,
			Data:          map[string]any{"replay": true},
		}
		fresh, found := pipeline.RunOne(ctx, exec.HookID, hc)
		if !found {
			replayed = append(replayed, hooks.HookExecution{
				HookID:        exec.HookID,
				Phase:         exec.Phase,
				ComponentID:   exec.ComponentID,
				CorrelationID: exec.CorrelationID,
				Skipped:       true,
				Error:         "hook no longer registered",
			})
			continue
		}
		replayed = append(replayed, fresh)
	}
	return replayed, nil
}
