package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/state"
)

// StoreArtifact stores a payload for a session. Identical bytes dedupe to
// the already-stored artifact; storing different bytes under an existing
// name creates the next version of that name.
func (m *Manager) StoreArtifact(ctx context.Context, sessionID string, typ ArtifactType, name string, data []byte, metadata map[string]any) (*Artifact, error) {
	if name == "" {
		return nil, lserror.Validation("name", "artifact name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, lserror.NotFound("session " + sessionID)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	version := 1
	for _, a := range m.artifacts[sessionID] {
		if a.SHA256 == digest {
			return a, nil
		}
		if a.Name == name && a.Version >= version {
			version = a.Version + 1
		}
	}

	artifact := &Artifact{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Name:      name,
		SHA256:    digest,
		Bytes:     append([]byte(nil), data...),
		Metadata:  metadata,
		Version:   version,
		CreatedAt: m.now().UTC(),
	}
	m.artifacts[sessionID] = append(m.artifacts[sessionID], artifact)

	if err := m.state.Set(ctx, state.SessionScope(sessionID), "artifact:"+artifact.ID, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// GetArtifact returns one artifact of a session by id.
func (m *Manager) GetArtifact(sessionID, artifactID string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.artifacts[sessionID] {
		if a.ID == artifactID {
			return a, nil
		}
	}
	return nil, lserror.NotFound("artifact " + artifactID)
}

// ListArtifacts returns a session's artifacts, newest first.
func (m *Manager) ListArtifacts(sessionID string) []*Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.artifacts[sessionID]
	out := make([]*Artifact, len(stored))
	for i, a := range stored {
		out[len(stored)-1-i] = a
	}
	return out
}
