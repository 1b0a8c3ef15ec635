// Package resolve tracks streaming context and assigns identity.
//
// The resolver owns, per session, the two pieces of mutable context
// the correlation engine needs: which conversation turn is currently
// streaming, and which code artifact was most recently finalized.
// Identifier minting is delegated to an external authority; the
// resolver never generates ids itself.
package resolve

import (
	"fmt"

	"github.com/justapithecus/loom/classify"
	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/types"
)

// Minter is the external identifier authority.
// Implementations must be monotonic and collision-free per session.
type Minter interface {
	// MintID returns a stable identifier for a new artifact, scoped by
	// kind and the linkage context it was authored under.
	MintID(kind types.ArtifactKind, contextID string) (string, error)
}

// TurnSequence reconstructs the most recent assistant turn id when no
// start marker was observed. Implementations probe the session's own
// turn counter; the result is a best-effort heuristic, not a contract.
type TurnSequence interface {
	LastAssistantMessageID(chatID string) string
}

// Identity is the linkage metadata stamped onto a new artifact.
type Identity struct {
	// ArtifactID is the minted stable identifier.
	ArtifactID string
	// MessageID is the owning conversation turn; empty in degraded mode.
	MessageID string
	// ParentID is the mint context: the current turn for code/html, the
	// producing code artifact (else the turn) for output. Set once.
	ParentID string
	// Degraded is true when the message id had to be reconstructed or
	// was unresolvable.
	Degraded bool
}

// sessionContext is the streaming context of one session: the turn
// currently being streamed and the code artifact most recently
// finalized within it.
type sessionContext struct {
	currentMessageID   string
	lastCodeArtifactID string
}

// Resolver holds streaming context keyed by session, so fragments for
// several chats multiplexed over one connection never borrow each
// other's turn or code linkage. Not safe for concurrent use; the
// pipeline drives it from a single goroutine.
//
// Construct with explicit starting context to test transitions in
// isolation; zero starting context matches a fresh session.
type Resolver struct {
	minter Minter
	turns  TurnSequence
	logger *log.Logger

	sessions map[string]*sessionContext
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithContext seeds one session with starting context.
func WithContext(chatID, currentMessageID, lastCodeArtifactID string) Option {
	return func(r *Resolver) {
		ctx := r.session(chatID)
		ctx.currentMessageID = currentMessageID
		ctx.lastCodeArtifactID = lastCodeArtifactID
	}
}

// WithTurnSequence installs the turn-counter probe used to reconstruct
// a missing message id.
func WithTurnSequence(turns TurnSequence) Option {
	return func(r *Resolver) { r.turns = turns }
}

// WithLogger installs a logger for degraded-path observability.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver backed by the given identifier authority.
func NewResolver(minter Minter, opts ...Option) *Resolver {
	r := &Resolver{minter: minter, sessions: make(map[string]*sessionContext)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewLogger("resolve")
	}
	return r
}

// session returns the context for chatID, creating it on first use.
func (r *Resolver) session(chatID string) *sessionContext {
	ctx, ok := r.sessions[chatID]
	if !ok {
		ctx = &sessionContext{}
		r.sessions[chatID] = ctx
	}
	return ctx
}

// CurrentMessageID returns the id of the turn currently streaming in
// the given session, or "".
func (r *Resolver) CurrentMessageID(chatID string) string {
	if ctx, ok := r.sessions[chatID]; ok {
		return ctx.currentMessageID
	}
	return ""
}

// LastCodeArtifactID returns the id of the code artifact most recently
// finalized in the given session, or "".
func (r *Resolver) LastCodeArtifactID(chatID string) string {
	if ctx, ok := r.sessions[chatID]; ok {
		return ctx.lastCodeArtifactID
	}
	return ""
}

// Observe applies a fragment's context transitions to its session.
// Returns true if the fragment was a turn marker (consumed as context,
// not artifact content).
func (r *Resolver) Observe(chatID string, frag *types.InboundFragment) bool {
	if !frag.IsMessageMarker() {
		return false
	}
	if frag.IsStart && frag.MessageID != "" {
		r.session(chatID).currentMessageID = frag.MessageID
		return true
	}
	if frag.IsEnd {
		delete(r.sessions, chatID)
		return true
	}
	// Mid-turn message content carries no artifact payload either.
	return true
}

// NoteCodeFinalized records a finalized code artifact as the linkage
// target for subsequent output in the same session.
func (r *Resolver) NoteCodeFinalized(chatID, artifactID string) {
	if artifactID != "" {
		r.session(chatID).lastCodeArtifactID = artifactID
	}
}

// Resolve mints identity and linkage for a new artifact.
// The mint context is the current turn for code/html artifacts, and the
// producing code artifact (falling back to the turn) for output and
// media. A missing turn id degrades through the TurnSequence probe and
// finally to empty — a logged, recoverable state, not an error.
// A minter failure is propagated.
func (r *Resolver) Resolve(chatID string, kind types.ArtifactKind) (Identity, error) {
	ctx := r.session(chatID)
	messageID, degraded := r.resolveMessageID(ctx, chatID)

	contextID := messageID
	if kind == types.KindOutput || kind == types.KindMedia {
		if ctx.lastCodeArtifactID != "" {
			contextID = ctx.lastCodeArtifactID
		}
	}

	id, err := r.minter.MintID(kind, contextID)
	if err != nil {
		return Identity{}, fmt.Errorf("mint id for %s artifact: %w", kind, err)
	}

	return Identity{
		ArtifactID: id,
		MessageID:  messageID,
		ParentID:   contextID,
		Degraded:   degraded,
	}, nil
}

// ResolveFragment is a convenience that combines classification output
// with identity resolution.
func (r *Resolver) ResolveFragment(chatID string, decision classify.Decision) (Identity, error) {
	return r.Resolve(chatID, decision.Kind)
}

// resolveMessageID returns the owning turn id, reconstructing it from
// the turn sequence when no start marker was seen.
func (r *Resolver) resolveMessageID(ctx *sessionContext, chatID string) (string, bool) {
	if ctx.currentMessageID != "" {
		return ctx.currentMessageID, false
	}
	if r.turns != nil {
		if id := r.turns.LastAssistantMessageID(chatID); id != "" {
			r.logger.Warn("reconstructed message id from turn sequence", map[string]any{
				"chat_id":    chatID,
				"message_id": id,
			})
			ctx.currentMessageID = id
			return id, true
		}
	}
	r.logger.Warn("no resolvable message id, proceeding unlinked", map[string]any{
		"chat_id": chatID,
	})
	return "", true
}
