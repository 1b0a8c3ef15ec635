package types

import "time"

// ArtifactKind is the classified type of an artifact.
// Immutable after creation.
type ArtifactKind string

// Artifact kind constants.
const (
	KindCode   ArtifactKind = "code"
	KindOutput ArtifactKind = "output"
	KindHTML   ArtifactKind = "html"
	KindMedia  ArtifactKind = "media"
)

// Category is the derived classification of a completed artifact,
// a deterministic function of (role, kind, format).
type Category string

// Category constants.
const (
	CategoryCodeWritten      Category = "code_written"
	CategoryExecutionConsole Category = "execution_console"
	CategoryExecutionOutput  Category = "execution_output"
	CategoryHTMLOutput       Category = "html_output"
	CategoryGeneralOutput    Category = "general_output"
	CategoryUnknown          Category = "unknown"
)

// IsCode reports whether the category marks a code-producing artifact.
func (c Category) IsCode() bool {
	return c == CategoryCodeWritten
}

// IsOutput reports whether the category marks an output-producing
// artifact (console, execution, html or general output).
func (c Category) IsOutput() bool {
	switch c {
	case CategoryExecutionConsole, CategoryExecutionOutput,
		CategoryHTMLOutput, CategoryGeneralOutput:
		return true
	default:
		return false
	}
}

// DeriveCategory computes the category for an artifact.
// Deterministic: identical inputs always yield identical categories.
func DeriveCategory(role Role, kind ArtifactKind, format string) Category {
	switch kind {
	case KindCode:
		return CategoryCodeWritten
	case KindHTML:
		return CategoryHTMLOutput
	case KindMedia:
		return CategoryGeneralOutput
	case KindOutput:
		if role == RoleComputer {
			if format == "" || format == "auto" || format == "console" {
				return CategoryExecutionConsole
			}
			return CategoryExecutionOutput
		}
		return CategoryGeneralOutput
	default:
		return CategoryUnknown
	}
}

// MediaKind classifies a single media item.
type MediaKind string

// Media kind constants.
const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// MediaItem is one entry of a media artifact's structured payload.
type MediaItem struct {
	// Kind is video or image.
	Kind MediaKind `json:"kind"`
	// Source is the playable/viewable URL or embed source.
	Source string `json:"source"`
	// Thumbnail is an optional preview image URL.
	Thumbnail string `json:"thumbnail,omitempty"`
	// Title is an optional display title.
	Title string `json:"title,omitempty"`
}

// Artifact is the unit of value produced by the correlation engine:
// one identified, linked, queryable object reassembled from the
// fragment stream.
type Artifact struct {
	// ID is the stable identifier, unique within a session, minted once
	// at first-fragment time and never reassigned.
	ID string `json:"id"`
	// BackendID is the sender's correlation id, for cross-referencing only.
	BackendID string `json:"backend_id,omitempty"`
	// Kind is the classified artifact kind. Immutable after creation.
	Kind ArtifactKind `json:"kind"`
	// Format is a language or mime hint.
	Format string `json:"format,omitempty"`
	// Content is the accumulated text. Append-only until finalization.
	Content string `json:"content,omitempty"`
	// Media holds the structured payload of media artifacts.
	Media []MediaItem `json:"media,omitempty"`
	// MessageID is the conversation turn this artifact belongs to.
	MessageID string `json:"message_id,omitempty"`
	// ParentID is the artifact or message this one is attached to
	// (output → the code that produced it). Set once, never mutated.
	ParentID string `json:"parent_id,omitempty"`
	// ChatID is the owning session.
	ChatID string `json:"chat_id"`
	// Category is derived at correlation time via DeriveCategory.
	Category Category `json:"category,omitempty"`
	// Role is the fragment role the artifact was classified from.
	Role Role `json:"role,omitempty"`
	// ChunkCount is the number of content fragments accumulated.
	ChunkCount int `json:"chunk_count"`
	// SessionIndex is the creation order within the session.
	SessionIndex int `json:"session_index"`
	// Complete is true once an end marker was observed for this id.
	// Consumers may read partial content before that but must not treat
	// it as final.
	Complete bool `json:"complete"`
	// CreatedAt is the first-fragment timestamp.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last-fragment timestamp.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. Query surfaces return clones so callers
// never hold internal references.
func (a *Artifact) Clone() *Artifact {
	c := *a
	if a.Media != nil {
		c.Media = make([]MediaItem, len(a.Media))
		copy(c.Media, a.Media)
	}
	return &c
}

// ArtifactGroup collects the artifacts produced by one conversation
// turn, split by category for the rendering surface.
type ArtifactGroup struct {
	// MessageID is the conversation-turn key.
	MessageID string `json:"message_id"`
	// Artifacts is the ordered list of member artifact ids.
	Artifacts []string `json:"artifacts"`
	// CodeArtifacts is the subset of ids with a code-producing category.
	CodeArtifacts []string `json:"code_artifacts,omitempty"`
	// OutputArtifacts is the subset of ids with an output-producing category.
	OutputArtifacts []string `json:"output_artifacts,omitempty"`
}

// Clone returns a deep copy of the group.
func (g *ArtifactGroup) Clone() *ArtifactGroup {
	c := &ArtifactGroup{MessageID: g.MessageID}
	c.Artifacts = append([]string(nil), g.Artifacts...)
	c.CodeArtifacts = append([]string(nil), g.CodeArtifacts...)
	c.OutputArtifacts = append([]string(nil), g.OutputArtifacts...)
	return c
}
