package correlate

import (
	"time"

	"github.com/justapithecus/loom/types"
)

// session is the in-memory state for one chat.
// Owned exclusively by the Correlator; never escapes as a reference.
type session struct {
	chatID string
	// artifacts is the id -> artifact registry. Exactly one artifact
	// per id exists at any time; updates mutate in place.
	artifacts map[string]*types.Artifact
	// order lists artifact ids in creation order.
	order []string
	// groups is the messageID -> group registry.
	groups map[string]*types.ArtifactGroup
	// groupOrder lists group keys in creation order.
	groupOrder []string
	// links maps parent id -> child artifact ids.
	links map[string][]string
	// loadedAt is the bulk-load (or lazy-create) timestamp.
	loadedAt time.Time
}

func newSession(chatID string) *session {
	return &session{
		chatID:    chatID,
		artifacts: make(map[string]*types.Artifact),
		groups:    make(map[string]*types.ArtifactGroup),
		links:     make(map[string][]string),
		loadedAt:  time.Now().UTC(),
	}
}

// add stores the artifact, stamping sessionIndex and category, and
// updates the creation order, link table and owning group.
// Re-adding an existing id is an update: content-bearing fields are
// refreshed, identity and linkage stay untouched.
func (s *session) add(artifact *types.Artifact) {
	if existing, ok := s.artifacts[artifact.ID]; ok {
		existing.Content = artifact.Content
		existing.Media = artifact.Media
		existing.ChunkCount = artifact.ChunkCount
		existing.Complete = artifact.Complete
		existing.UpdatedAt = artifact.UpdatedAt
		return
	}

	artifact.SessionIndex = len(s.order)
	artifact.Category = types.DeriveCategory(artifact.Role, artifact.Kind, artifact.Format)
	s.artifacts[artifact.ID] = artifact
	s.order = append(s.order, artifact.ID)

	if artifact.ParentID != "" {
		s.links[artifact.ParentID] = append(s.links[artifact.ParentID], artifact.ID)
	}

	if key := groupKey(artifact); key != "" {
		group, ok := s.groups[key]
		if !ok {
			group = &types.ArtifactGroup{MessageID: key}
			s.groups[key] = group
			s.groupOrder = append(s.groupOrder, key)
		}
		group.Artifacts = append(group.Artifacts, artifact.ID)
		switch {
		case artifact.Category.IsCode():
			group.CodeArtifacts = append(group.CodeArtifacts, artifact.ID)
		case artifact.Category.IsOutput():
			group.OutputArtifacts = append(group.OutputArtifacts, artifact.ID)
		}
	}
}

// groupKey picks the message-scoped grouping key: the conversation turn
// when known, else the sender's correlation id.
func groupKey(artifact *types.Artifact) string {
	if artifact.MessageID != "" {
		return artifact.MessageID
	}
	return artifact.BackendID
}

// lastMessageID returns the most recently created group key, the
// best-effort stand-in for "the current assistant turn" when no start
// marker was observed. Heuristic, not a guaranteed invariant.
func (s *session) lastMessageID() string {
	if len(s.groupOrder) == 0 {
		return ""
	}
	return s.groupOrder[len(s.groupOrder)-1]
}
