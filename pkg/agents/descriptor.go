// Package agents holds the agent descriptor model, the type registry and
// the factory that builds live agents with lifecycle hooks.
package agents

import (
	"context"
	"strings"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sandbox"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

// ToolWildcard grants an agent every tool. It implies the privileged
// security level.
const ToolWildcard = "*"

// Descriptor declares one agent.
type Descriptor struct {
	ID           string                 `yaml:"id" json:"id"`
	Type         string                 `yaml:"type" json:"type"`
	Name         string                 `yaml:"name" json:"name"`
	AllowedTools []string               `yaml:"allowed_tools" json:"allowed_tools"`
	Limits       sandbox.ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	// CreationHooks are hook ids to run, in order, around this agent's
	// creation in addition to the globally registered ones.
	CreationHooks []string `yaml:"creation_hooks" json:"creation_hooks,omitempty"`
}

// Validate checks the descriptor before it reaches the factory.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return lserror.Validation("id", "agent id must not be empty")
	}
	if strings.Contains(d.ID, ":") {
		return lserror.Validation("id", "agent id must not contain ':'")
	}
	if strings.TrimSpace(d.Type) == "" {
		return lserror.Validation("type", "agent type must not be empty")
	}
	for _, name := range d.AllowedTools {
		if name == ToolWildcard && len(d.AllowedTools) > 1 {
			return lserror.Validation("allowed_tools", "wildcard must be the only entry")
		}
	}
	return nil
}

// Privileged reports whether the descriptor carries the tool wildcard.
func (d Descriptor) Privileged() bool {
	return len(d.AllowedTools) == 1 && d.AllowedTools[0] == ToolWildcard
}

// SecurityLevel derives the level the agent's tool invocations run at.
func (d Descriptor) SecurityLevel() tools.SecurityLevel {
	if d.Privileged() {
		return tools.LevelPrivileged
	}
	return tools.LevelRestricted
}

// CanUseTool reports whether the descriptor grants access to a tool name.
func (d Descriptor) CanUseTool(name string) bool {
	for _, allowed := range d.AllowedTools {
		if allowed == ToolWildcard || allowed == name {
			return true
		}
	}
	return false
}

// Agent is a live component built from a descriptor.
type Agent interface {
	// Descriptor returns the descriptor the agent was built from.
	Descriptor() Descriptor
	// Execute runs one turn of the agent.
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}
