package kernel

import (
	"context"
	"sync"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/state"
)

// Comm target names served by this kernel.
const (
	TargetSession = "llmspell.session"
	TargetState   = "llmspell.state"
)

// reserved key for the bulk variables map inside a session's state.
const variablesKey = "variables"

// Comm is one open side-channel, bound at open time to a Jupyter session
// and the internal session serving it.
type Comm struct {
	ID             string
	Target         string
	JupyterSession string
	SessionID      string
}

// TargetHandler serves the actions of one comm target.
type TargetHandler func(ctx context.Context, comm *Comm, action string, req map[string]any) (any, error)

// CommManager routes comm_open/msg/close to registered targets.
type CommManager struct {
	mu       sync.RWMutex
	comms    map[string]*Comm
	targets  map[string]TargetHandler
	sessions *sessions.Manager
	state    *state.Manager
}

// NewCommManager creates a manager with the built-in session and state
// targets installed.
func NewCommManager(sessionMgr *sessions.Manager, stateMgr *state.Manager) *CommManager {
	m := &CommManager{
		comms:    make(map[string]*Comm),
		targets:  make(map[string]TargetHandler),
		sessions: sessionMgr,
		state:    stateMgr,
	}
	m.targets[TargetSession] = m.sessionTarget
	m.targets[TargetState] = m.stateTarget
	return m
}

// RegisterTarget installs a handler for a target name.
func (m *CommManager) RegisterTarget(name string, handler TargetHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[name] = handler
}

// Targets lists the registered target names, built-ins first.
func (m *CommManager) Targets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{TargetSession, TargetState}
	for name := range m.targets {
		if name != TargetSession && name != TargetState {
			out = append(out, name)
		}
	}
	return out
}

// Open binds a new comm to a target and the caller's session. The
// internal session is created on demand from the Jupyter session id.
func (m *CommManager) Open(ctx context.Context, commID, target, jupyterSession, kernelID string) (*Comm, error) {
	if commID == "" {
		return nil, lserror.Validation("comm_id", "comm_id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.targets[target]; !exists {
		return nil, lserror.Validation("target_name", "unsupported comm target: "+target)
	}
	if _, exists := m.comms[commID]; exists {
		return nil, lserror.Validation("comm_id", "comm "+commID+" is already open")
	}

	comm := &Comm{ID: commID, Target: target, JupyterSession: jupyterSession}
	if target == TargetSession || target == TargetState {
		s, err := m.sessions.GetOrCreate(ctx, jupyterSession, kernelID)
		if err != nil {
			return nil, err
		}
		comm.SessionID = s.ID
	}
	m.comms[commID] = comm
	return comm, nil
}

// Handle dispatches one comm message to its target.
func (m *CommManager) Handle(ctx context.Context, commID string, req map[string]any) (any, error) {
	m.mu.RLock()
	comm, exists := m.comms[commID]
	var handler TargetHandler
	if exists {
		handler = m.targets[comm.Target]
	}
	m.mu.RUnlock()
	if !exists {
		return nil, lserror.NotFound("unknown comm " + commID)
	}

	action, _ := req["action"].(string)
	if action == "" {
		return nil, lserror.Validation("action", "comm request needs an action")
	}
	return handler(ctx, comm, action, req)
}

// Close removes a comm. Closing an unknown comm is a no-op.
func (m *CommManager) Close(commID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comms, commID)
}

// Count returns the number of open comms.
func (m *CommManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.comms)
}

// sessionTarget serves llmspell.session: state access plus lifecycle and
// artifact introspection for the bound session.
func (m *CommManager) sessionTarget(ctx context.Context, comm *Comm, action string, req map[string]any) (any, error) {
	switch action {
	case "get_state", "set_state", "get_variables", "set_variables":
		return m.stateTarget(ctx, comm, action, req)

	case "get_execution_count":
		s, err := m.sessions.Get(comm.SessionID)
		if err != nil {
			return nil, err
		}
		return s.ExecutionCount, nil

	case "get_session_info":
		sessionID := comm.SessionID
		if id, ok := req["session_id"].(string); ok && id != "" {
			sessionID = id
		}
		s, err := m.sessions.Get(sessionID)
		if err != nil {
			return nil, err
		}
		artifacts := m.sessions.ListArtifacts(sessionID)
		names := make([]any, 0, len(artifacts))
		for _, a := range artifacts {
			names = append(names, map[string]any{
				"id":      a.ID,
				"name":    a.Name,
				"type":    string(a.Type),
				"version": a.Version,
			})
		}
		return map[string]any{
			"session_id":      s.ID,
			"status":          string(s.Status),
			"execution_count": s.ExecutionCount,
			"artifacts":       names,
		}, nil

	case "suspend_session":
		return true, m.sessions.Suspend(ctx, comm.SessionID)
	case "activate_session":
		return true, m.sessions.Activate(ctx, comm.SessionID)

	default:
		return nil, lserror.Validation("action", "unknown action: "+action)
	}
}

// stateTarget serves llmspell.state: raw key access on the session scope.
func (m *CommManager) stateTarget(ctx context.Context, comm *Comm, action string, req map[string]any) (any, error) {
	scope := state.SessionScope(comm.SessionID)
	switch action {
	case "get_state":
		key, _ := req["key"].(string)
		if key == "" {
			snapshot, err := m.state.GetAll(ctx, scope)
			if err != nil {
				return nil, err
			}
			return snapshot, nil
		}
		value, found, err := m.state.Get(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return value, nil

	case "set_state":
		key, _ := req["key"].(string)
		if key == "" {
			return nil, lserror.Validation("key", "set_state needs a key")
		}
		if err := m.state.Set(ctx, scope, key, req["value"]); err != nil {
			return nil, err
		}
		return true, nil

	case "get_variables":
		value, found, err := m.state.Get(ctx, scope, variablesKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return map[string]any{}, nil
		}
		return value, nil

	case "set_variables":
		vars, ok := req[variablesKey].(map[string]any)
		if !ok {
			return nil, lserror.Validation(variablesKey, "set_variables needs a variables object")
		}
		if err := m.state.Set(ctx, scope, variablesKey, vars); err != nil {
			return nil, err
		}
		return true, nil

	default:
		return nil, lserror.Validation("action", "unknown action: "+action)
	}
}
