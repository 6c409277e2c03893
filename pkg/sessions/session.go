// Package sessions groups executions: it maps transport-level session ids
// to internal ones, tracks activity, stores content-addressed artifacts and
// replays recorded hook executions.
package sessions

import (
	"time"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// Session is one conversation with the kernel.
type Session struct {
	ID             string    `json:"id"`
	JupyterID      string    `json:"jupyter_id,omitempty"`
	KernelID       string    `json:"kernel_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	ExecutionCount int       `json:"execution_count"`
	Status         Status    `json:"status"`
}

// Active reports whether the session accepts new executions.
func (s *Session) Active() bool { return s.Status == StatusActive }

// ArtifactType classifies an artifact's origin.
type ArtifactType string

const (
	ArtifactUserInput   ArtifactType = "user_input"
	ArtifactAgentOutput ArtifactType = "agent_output"
	ArtifactToolOutput  ArtifactType = "tool_output"
	ArtifactSystemEvent ArtifactType = "system_event"
	ArtifactCustom      ArtifactType = "custom"
)

// Artifact is one stored payload, content-addressed within its session.
type Artifact struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      ArtifactType   `json:"type"`
	Name      string         `json:"name"`
	SHA256    string         `json:"sha256"`
	Bytes     []byte         `json:"bytes"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
}
