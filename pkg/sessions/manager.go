package sessions

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/hooks"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/state"
)

// Manager owns the session table. Sessions live in memory and each
// lifecycle change is persisted under the session's own state scope, so a
// restarted kernel can answer questions about past sessions.
type Manager struct {
	state *state.Manager

	mu        sync.RWMutex
	sessions  map[string]*Session    // internal id -> session
	byJupyter map[string]string      // jupyter id -> internal id
	artifacts map[string][]*Artifact // insertion order per session
	hookLog   map[string][]hooks.HookExecution

	now func() time.Time
}

// NewManager creates a session manager persisting through stateMgr.
func NewManager(stateMgr *state.Manager) *Manager {
	return &Manager{
		state:     stateMgr,
		sessions:  make(map[string]*Session),
		byJupyter: make(map[string]string),
		artifacts: make(map[string][]*Artifact),
		hookLog:   make(map[string][]hooks.HookExecution),
		now:       time.Now,
	}
}

// GetOrCreate returns the session mapped to a transport-level Jupyter id,
// creating and activating one on first sight.
func (m *Manager) GetOrCreate(ctx context.Context, jupyterID, kernelID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byJupyter[jupyterID]; ok {
		return m.sessions[id], nil
	}

	now := m.now().UTC()
	s := &Session{
		ID:           uuid.New().String(),
		JupyterID:    jupyterID,
		KernelID:     kernelID,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
	}
	m.sessions[s.ID] = s
	if jupyterID != "" {
		m.byJupyter[jupyterID] = s.ID
	}
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	observability.SetSessionsActive(m.activeLocked())
	log.Printf("[Sessions] created %s (jupyter=%s)", s.ID, jupyterID)
	return s, nil
}

// Get returns a session by internal id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, lserror.NotFound("session " + id)
	}
	return s, nil
}

// ByJupyterID resolves a transport-level id.
func (m *Manager) ByJupyterID(jupyterID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byJupyter[jupyterID]
	if !ok {
		return nil, lserror.NotFound("session for jupyter id " + jupyterID)
	}
	return m.sessions[id], nil
}

// List returns all sessions, most recently active first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// RecordExecution bumps the execution counter and activity clock,
// returning the new count.
func (m *Manager) RecordExecution(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return 0, lserror.NotFound("session " + id)
	}
	if !s.Active() {
		return 0, lserror.Validation("session", "session "+id+" is not active")
	}
	s.ExecutionCount++
	s.LastActivity = m.now().UTC()
	return s.ExecutionCount, m.persist(ctx, s)
}

// Activate moves a session (back) to active.
func (m *Manager) Activate(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, StatusActive)
}

// Suspend pauses a session; it keeps its state and artifacts.
func (m *Manager) Suspend(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, StatusSuspended)
}

// Complete ends a session. Completed sessions cannot be reactivated.
func (m *Manager) Complete(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, StatusCompleted)
}

func (m *Manager) setStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return lserror.NotFound("session " + id)
	}
	if s.Status == StatusCompleted && status != StatusCompleted {
		return lserror.Validation("session", "session "+id+" is already completed")
	}
	s.Status = status
	s.LastActivity = m.now().UTC()
	observability.SetSessionsActive(m.activeLocked())
	return m.persist(ctx, s)
}

// activeLocked counts active sessions; callers hold m.mu.
func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			n++
		}
	}
	return n
}

// CleanupInactive completes sessions idle longer than maxIdle and returns
// how many it completed.
func (m *Manager) CleanupInactive(ctx context.Context, maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().UTC().Add(-maxIdle)
	cleaned := 0
	for _, s := range m.sessions {
		if s.Status == StatusCompleted || !s.LastActivity.Before(cutoff) {
			continue
		}
		s.Status = StatusCompleted
		if err := m.persist(ctx, s); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	if cleaned > 0 {
		observability.SetSessionsActive(m.activeLocked())
		log.Printf("[Sessions] completed %d inactive sessions", cleaned)
	}
	return cleaned, nil
}

// Scope returns the state scope owned by a session.
func (m *Manager) Scope(id string) state.Scope { return state.SessionScope(id) }

func (m *Manager) persist(ctx context.Context, s *Session) error {
	return m.state.Set(ctx, state.SessionScope(s.ID), "lifecycle", map[string]any{
		"id":              s.ID,
		"jupyter_id":      s.JupyterID,
		"kernel_id":       s.KernelID,
		"created_at":      s.CreatedAt.Format(time.RFC3339Nano),
		"last_activity":   s.LastActivity.Format(time.RFC3339Nano),
		"execution_count": s.ExecutionCount,
		"status":          string(s.Status),
	})
}
