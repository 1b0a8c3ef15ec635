//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// All components (CLI, frame codec, store schema) share this version.
const Version = "0.1.0"

// Role identifies the author of an inbound fragment.
type Role string

// Role constants for the backend message stream.
const (
	RoleAssistant Role = "assistant"
	RoleComputer  Role = "computer"
	RoleSystem    Role = "system"
)

// FragmentKind is the sender's own type label for a fragment.
// It is a hint, not an identity: the classifier maps (role, kind,
// format, content) to an ArtifactKind.
type FragmentKind string

// Fragment kind constants.
const (
	FragmentCode    FragmentKind = "code"
	FragmentConsole FragmentKind = "console"
	FragmentMedia   FragmentKind = "media"
	FragmentMessage FragmentKind = "message"
)

// RecipientUser is the only recipient value addressed to the local user.
// Computer fragments carrying any other non-empty recipient are
// inter-agent traffic and must not surface as artifacts.
const RecipientUser = "user"

// InboundFragment is one wire message from the backend connection.
// Fragments arrive in send order with no sequence numbers; each carries
// a slice of at most one logical artifact's content.
type InboundFragment struct {
	// Role is the author of the fragment.
	Role Role `msgpack:"role" json:"role"`
	// Kind is the sender's type label.
	Kind FragmentKind `msgpack:"kind" json:"kind"`
	// Format is a language or mime hint (e.g. "python", "html", "auto").
	Format string `msgpack:"format,omitempty" json:"format,omitempty"`
	// Content is the fragment payload: a string for text fragments, or
	// a structured value for media payloads. Decoded once at ingress.
	Content any `msgpack:"content,omitempty" json:"content,omitempty"`
	// IsStart marks the opening fragment of a streamed object.
	IsStart bool `msgpack:"is_start,omitempty" json:"is_start,omitempty"`
	// IsEnd marks the closing fragment of a streamed object.
	IsEnd bool `msgpack:"is_end,omitempty" json:"is_end,omitempty"`
	// MessageID is the conversation-turn identifier, carried on
	// assistant message markers and on fragments the sender chose to
	// correlate explicitly.
	MessageID string `msgpack:"message_id,omitempty" json:"message_id,omitempty"`
	// BackendID is the sender's own correlation id. Passthrough only,
	// never used for identity.
	BackendID string `msgpack:"backend_id,omitempty" json:"backend_id,omitempty"`
	// Recipient is an optional recipient filter on computer fragments.
	Recipient string `msgpack:"recipient,omitempty" json:"recipient,omitempty"`
	// ChatID is the owning session, when the transport multiplexes
	// several sessions over one connection.
	ChatID string `msgpack:"chat_id,omitempty" json:"chat_id,omitempty"`
}

// Text returns the content as a string. Structured payloads return "".
func (f *InboundFragment) Text() string {
	s, _ := f.Content.(string)
	return s
}

// HasContent reports whether the fragment carries any payload.
func (f *InboundFragment) HasContent() bool {
	if f.Content == nil {
		return false
	}
	if s, ok := f.Content.(string); ok {
		return s != ""
	}
	return true
}

// SelfContained reports whether the fragment is a complete one-shot
// payload with no streaming phase (neither start nor end marker).
func (f *InboundFragment) SelfContained() bool {
	return !f.IsStart && !f.IsEnd && f.HasContent()
}

// IsMessageMarker reports whether the fragment opens or closes an
// assistant conversation turn rather than carrying artifact content.
func (f *InboundFragment) IsMessageMarker() bool {
	return f.Role == RoleAssistant && f.Kind == FragmentMessage
}

// ForeignRecipient reports whether the fragment is addressed to
// something other than the local user.
func (f *InboundFragment) ForeignRecipient() bool {
	return f.Recipient != "" && f.Recipient != RecipientUser
}
