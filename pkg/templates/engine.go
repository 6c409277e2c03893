// Package templates implements named recipes: parameterized flows that run
// agents and tools and leave artifacts behind. A template takes a typed
// parameter object and produces a result plus zero or more artifacts.
package templates

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

// Metrics summarizes one template run.
type Metrics struct {
	Duration time.Duration `json:"duration"`
	Steps    int           `json:"steps"`
}

// Output is what a template run produces.
type Output struct {
	Result    any                  `json:"result"`
	Artifacts []*sessions.Artifact `json:"artifacts,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	Metrics   Metrics              `json:"metrics"`
}

// RunContext hands a template its execution surface: the scheduler, the
// session it runs under, and a sink for artifacts. Templates never reach
// for infrastructure directly, so a registered template cannot fail on
// missing infrastructure.
type RunContext struct {
	Exec      *executor.Executor
	SessionID string

	engine *Engine
	steps  int
	output []*sessions.Artifact
}

// Step counts one unit of work toward the run's metrics.
func (rc *RunContext) Step() { rc.steps++ }

// StoreArtifact writes an artifact under the run's session and attaches
// it to the template output.
func (rc *RunContext) StoreArtifact(ctx context.Context, typ sessions.ArtifactType, name string, data []byte, metadata map[string]any) (*sessions.Artifact, error) {
	a, err := rc.engine.sessions.StoreArtifact(ctx, rc.SessionID, typ, name, data, metadata)
	if err != nil {
		return nil, err
	}
	rc.output = append(rc.output, a)
	return a, nil
}

// RunFunc is the body of a template. Params have already passed schema
// validation with defaults applied.
type RunFunc func(ctx context.Context, rc *RunContext, params map[string]any) (any, map[string]any, error)

// Template is one named recipe.
type Template struct {
	ID          string
	Name        string
	Description string
	Category    string
	Schema      tools.Schema
	Run         RunFunc
}

// Engine holds the template registry and runs templates against the
// executor and session manager it was built with.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]Template
	exec      *executor.Executor
	sessions  *sessions.Manager
}

// NewEngine creates an engine. Both collaborators are required, which is
// what keeps "infrastructure missing" out of the error surface.
func NewEngine(exec *executor.Executor, sessionMgr *sessions.Manager) (*Engine, error) {
	if exec == nil {
		return nil, lserror.Validation("executor", "template engine needs an executor")
	}
	if sessionMgr == nil {
		return nil, lserror.Validation("sessions", "template engine needs a session manager")
	}
	return &Engine{
		templates: make(map[string]Template),
		exec:      exec,
		sessions:  sessionMgr,
	}, nil
}

// Register adds a template. Duplicate ids are rejected.
func (e *Engine) Register(t Template) error {
	if t.ID == "" {
		return lserror.Validation("id", "template id must not be empty")
	}
	if t.Run == nil {
		return lserror.Validation("run", "template "+t.ID+" has no run function")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.templates[t.ID]; exists {
		return lserror.Validation("id", "template already registered: "+t.ID)
	}
	e.templates[t.ID] = t
	return nil
}

// Get returns a template by id.
func (e *Engine) Get(id string) (Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, exists := e.templates[id]
	if !exists {
		return Template{}, lserror.NotFound("template " + id)
	}
	return t, nil
}

// List returns all templates sorted by id.
func (e *Engine) List() []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Execute runs a template. Errors are NotFound for an unknown id,
// Validation for a parameter schema violation, or whatever the template
// body itself returns.
func (e *Engine) Execute(ctx context.Context, id string, params map[string]any, sessionID string) (*Output, error) {
	t, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	validated, err := t.Schema.Validate(params)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		s, err := e.sessions.GetOrCreate(ctx, "template:"+uuid.New().String(), "")
		if err != nil {
			return nil, err
		}
		sessionID = s.ID
	} else if _, err := e.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	rc := &RunContext{Exec: e.exec, SessionID: sessionID, engine: e}
	start := time.Now()
	result, metadata, err := t.Run(ctx, rc, validated)
	if err != nil {
		return nil, err
	}
	return &Output{
		Result:    result,
		Artifacts: rc.output,
		Metadata:  metadata,
		Metrics: Metrics{
			Duration: time.Since(start),
			Steps:    rc.steps,
		},
	}, nil
}
