// Package tools defines the tool contract and registry: named, schema-typed
// operations the executor dispatches on behalf of scripts and agents.
package tools

import (
	"context"
	"encoding/json"

	"github.com/llmspell-dev/llmspell/pkg/sandbox"
)

// SecurityLevel constrains which sandbox a tool may run in.
type SecurityLevel string

const (
	// LevelSafe tools touch no files, network or environment.
	LevelSafe SecurityLevel = "safe"
	// LevelRestricted tools access resources through sandbox allow-lists.
	LevelRestricted SecurityLevel = "restricted"
	// LevelPrivileged tools run without sandbox restriction.
	LevelPrivileged SecurityLevel = "privileged"
)

// rank orders levels for permission comparison.
func (l SecurityLevel) rank() int {
	switch l {
	case LevelSafe:
		return 0
	case LevelRestricted:
		return 1
	case LevelPrivileged:
		return 2
	}
	return -1
}

// Allows reports whether a caller granted level l may run a tool that
// requires need.
func (l SecurityLevel) Allows(need SecurityLevel) bool {
	return l.rank() >= need.rank()
}

// Valid reports whether l is a known security level.
func (l SecurityLevel) Valid() bool { return l.rank() >= 0 }

// Handler executes the tool. Input has already passed schema validation.
type Handler func(ctx context.Context, input Args, ec *ExecContext) (any, error)

// ExecContext carries the per-invocation environment a tool runs under.
type ExecContext struct {
	SessionID     string
	CorrelationID string
	Sandbox       *sandbox.Context
	Monitor       *sandbox.ResourceMonitor
}

// Tool is one registered operation.
type Tool struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Category      string                 `json:"category"`
	SecurityLevel SecurityLevel          `json:"security_level"`
	Schema        Schema                 `json:"input_schema"`
	Limits        sandbox.ResourceLimits `json:"resource_limits,omitempty"`
	Handler       Handler                `json:"-"`
}

// Args provides typed access to validated tool input.
type Args map[string]any

// String returns a string argument, or "" when absent or mistyped.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer argument, tolerating the numeric types JSON
// decoding produces.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// Float returns a float argument.
func (a Args) Float(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}

// Bool returns a boolean argument.
func (a Args) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// Map returns an object argument.
func (a Args) Map(key string) map[string]any {
	if v, ok := a[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Slice returns an array argument.
func (a Args) Slice(key string) []any {
	if v, ok := a[key].([]any); ok {
		return v
	}
	return nil
}
