// Package correlate stores finalized artifacts per conversation
// session, builds message-scoped groups, and answers queries.
//
// The Correlator owns all shared state (artifact registry, group
// registry, link table) and is the only stage with locking: queries may
// arrive from a different goroutine than the ingest loop, and session
// switches block on the external store.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/metrics"
	"github.com/justapithecus/loom/notify"
	"github.com/justapithecus/loom/trace"
	"github.com/justapithecus/loom/types"
)

// Store is the durable artifact store collaborator, used only on
// session switch.
type Store interface {
	// LoadArtifacts returns the historical artifacts for a chat in
	// creation order.
	LoadArtifacts(ctx context.Context, chatID string) ([]types.Artifact, error)
}

// SessionView is the query result for one session: defensively-copied
// artifacts and groups, sorted by creation order.
type SessionView struct {
	ChatID    string                 `json:"chat_id"`
	Artifacts []*types.Artifact      `json:"artifacts"`
	Groups    []*types.ArtifactGroup `json:"groups"`
}

// ErrNoChat is returned when an operation has no resolvable session.
var ErrNoChat = errors.New("no resolvable chat id")

// loadCall coalesces concurrent bulk loads for one chat.
type loadCall struct {
	done chan struct{}
	err  error
}

// Config configures a Correlator.
type Config struct {
	// Store provides bulk historical loads. Required for SwitchSession
	// of unseen sessions; nil treats every session as empty.
	Store Store
	// Hub receives notifications; nil creates a private hub.
	Hub *notify.Hub
	// Tracer is the optional traceability collaborator.
	Tracer trace.Recorder
	// Logger defaults to a correlate-tagged logger.
	Logger *log.Logger
	// Collector is optional.
	Collector *metrics.Collector
}

// Correlator is the session-scoped artifact registry.
type Correlator struct {
	store     Store
	hub       *notify.Hub
	tracer    trace.Recorder
	logger    *log.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	sessions map[string]*session
	loading  map[string]*loadCall
	current  string
}

// NewCorrelator creates a correlator.
func NewCorrelator(cfg Config) *Correlator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger("correlate")
	}
	hub := cfg.Hub
	if hub == nil {
		hub = notify.NewHub()
	}
	return &Correlator{
		store:     cfg.Store,
		hub:       hub,
		tracer:    cfg.Tracer,
		logger:    logger,
		collector: cfg.Collector,
		sessions:  make(map[string]*session),
		loading:   make(map[string]*loadCall),
	}
}

// Hub returns the notification hub for subscriber registration.
func (c *Correlator) Hub() *notify.Hub { return c.hub }

// CurrentChatID returns the active session id, or "".
func (c *Correlator) CurrentChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SwitchSession makes chatID the active session, bulk-loading its
// history from the store on first reference. The load is all-or-nothing:
// a store failure propagates and no partial session is cached. A second
// switch for the same chat while a load is outstanding waits on the
// in-flight load instead of issuing a duplicate fetch. Fragments for
// other, already-loaded sessions are not blocked by a pending load.
func (c *Correlator) SwitchSession(ctx context.Context, chatID string) (*SessionView, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}

	for {
		c.mu.Lock()
		if sess, ok := c.sessions[chatID]; ok {
			c.current = chatID
			view := c.viewLocked(sess)
			c.mu.Unlock()
			c.hub.PublishSession(notify.SessionEvent{
				ChatID:        chatID,
				ArtifactCount: len(view.Artifacts),
				GroupCount:    len(view.Groups),
			})
			return view, nil
		}
		if call, ok := c.loading[chatID]; ok {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-call.done:
			}
			if call.err != nil {
				return nil, call.err
			}
			// Loaded by the other caller; loop re-reads the cache.
			continue
		}
		call := &loadCall{done: make(chan struct{})}
		c.loading[chatID] = call
		c.mu.Unlock()

		view, err := c.load(ctx, chatID)

		c.mu.Lock()
		delete(c.loading, chatID)
		c.mu.Unlock()
		call.err = err
		close(call.done)

		if err != nil {
			c.collector.IncStoreLoadFailures()
			return nil, err
		}
		c.collector.IncSessionsLoaded()
		c.hub.PublishSession(notify.SessionEvent{
			ChatID:        chatID,
			ArtifactCount: len(view.Artifacts),
			GroupCount:    len(view.Groups),
		})
		return view, nil
	}
}

// load fetches history, replays it into a fresh session and installs it.
func (c *Correlator) load(ctx context.Context, chatID string) (*SessionView, error) {
	sess := newSession(chatID)
	if c.store != nil {
		artifacts, err := c.store.LoadArtifacts(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("load artifacts for %s: %w", chatID, err)
		}
		// Replay in order through the same path live artifacts take,
		// minus notifications: historical artifacts are not news.
		for i := range artifacts {
			artifact := artifacts[i].Clone()
			artifact.ChatID = chatID
			if artifact.ID == "" {
				c.logger.Warn("dropping stored artifact without id", map[string]any{
					"chat_id": chatID,
				})
				continue
			}
			sess.add(artifact)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[chatID] = sess
	c.current = chatID
	return c.viewLocked(sess), nil
}

// AddArtifact registers a finalized (or updated) artifact with its
// session, which is created lazily on first reference. The stored copy
// is stamped with sessionIndex and category. Returns the stamped
// artifact (a copy) or nil when the input has no id or no resolvable
// chat — a logged no-op.
func (c *Correlator) AddArtifact(artifact *types.Artifact) *types.Artifact {
	if artifact == nil || artifact.ID == "" {
		c.logger.Warn("ignoring artifact without id", nil)
		return nil
	}

	c.mu.Lock()
	chatID := artifact.ChatID
	if chatID == "" {
		chatID = c.current
	}
	if chatID == "" {
		c.mu.Unlock()
		c.logger.Warn("ignoring artifact without resolvable chat", map[string]any{
			"artifact_id": artifact.ID,
		})
		return nil
	}

	sess, ok := c.sessions[chatID]
	if !ok {
		sess = newSession(chatID)
		c.sessions[chatID] = sess
		if c.current == "" {
			c.current = chatID
		}
	}

	_, existed := sess.artifacts[artifact.ID]
	stored := artifact.Clone()
	stored.ChatID = chatID
	sess.add(stored)
	result := sess.artifacts[stored.ID].Clone()
	c.mu.Unlock()

	c.hub.PublishArtifact(notify.ArtifactEvent{
		ChatID:     chatID,
		ArtifactID: result.ID,
		Kind:       string(result.Kind),
		Category:   string(result.Category),
		MessageID:  result.MessageID,
		ParentID:   result.ParentID,
		Updated:    existed,
	})
	c.registerTrace(result, existed)
	return result
}

// registerTrace mirrors the registration to the traceability
// collaborator. Fire-and-forget: failures are logged and dropped.
func (c *Correlator) registerTrace(artifact *types.Artifact, updated bool) {
	if c.tracer == nil {
		return
	}
	status := "complete"
	if updated {
		status = "updated"
	}
	err := c.tracer.RegisterArtifact(context.Background(), trace.Record{
		ID:              artifact.ID,
		Kind:            string(artifact.Kind),
		Format:          artifact.Format,
		SourceMessageID: artifact.MessageID,
		ChatID:          artifact.ChatID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
	})
	if err != nil {
		c.logger.Warn("trace registration failed", map[string]any{
			"artifact_id": artifact.ID,
			"error":       err.Error(),
		})
	}
}

// SessionArtifacts returns the session's artifacts in creation order.
// Empty chatID means the current session. Unknown sessions return nil.
func (c *Correlator) SessionArtifacts(chatID string) []*types.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessionLocked(chatID)
	if sess == nil {
		return nil
	}
	return cloneArtifactsLocked(sess)
}

// Artifact returns one artifact by id. Empty chatID means the current
// session. Unknown ids return nil.
func (c *Correlator) Artifact(id, chatID string) *types.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessionLocked(chatID)
	if sess == nil {
		return nil
	}
	artifact, ok := sess.artifacts[id]
	if !ok {
		return nil
	}
	return artifact.Clone()
}

// LinkedArtifacts returns the children of an artifact: everything it
// produced, per the link table. Searches all cached sessions for the
// owning one. Unknown ids return nil.
func (c *Correlator) LinkedArtifacts(id string) []*types.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sess := range c.sessions {
		children, ok := sess.links[id]
		if !ok {
			continue
		}
		result := make([]*types.Artifact, 0, len(children))
		for _, childID := range children {
			if child, ok := sess.artifacts[childID]; ok {
				result = append(result, child.Clone())
			}
		}
		return result
	}
	return nil
}

// Group returns the artifact group for a conversation turn.
// Empty chatID means the current session. Unknown turns return nil.
func (c *Correlator) Group(messageID, chatID string) *types.ArtifactGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessionLocked(chatID)
	if sess == nil {
		return nil
	}
	group, ok := sess.groups[messageID]
	if !ok {
		return nil
	}
	return group.Clone()
}

// ArtifactsByCategory returns the session's artifacts of one category,
// in creation order. Empty chatID means the current session.
func (c *Correlator) ArtifactsByCategory(category types.Category, chatID string) []*types.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessionLocked(chatID)
	if sess == nil {
		return nil
	}
	var result []*types.Artifact
	for _, id := range sess.order {
		if artifact := sess.artifacts[id]; artifact.Category == category {
			result = append(result, artifact.Clone())
		}
	}
	return result
}

// ClearSession drops one session's cached state. Durable storage is
// unaffected.
func (c *Correlator) ClearSession(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, chatID)
	if c.current == chatID {
		c.current = ""
	}
}

// ClearAllSessions drops all cached state.
func (c *Correlator) ClearAllSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[string]*session)
	c.current = ""
}

// LastAssistantMessageID implements the turn-sequence probe for the
// resolver's degraded mode: the most recently created group stands in
// for the current assistant turn.
func (c *Correlator) LastAssistantMessageID(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessionLocked(chatID)
	if sess == nil {
		return ""
	}
	return sess.lastMessageID()
}

// sessionLocked resolves empty chatID to the current session.
// Caller must hold mu.
func (c *Correlator) sessionLocked(chatID string) *session {
	if chatID == "" {
		chatID = c.current
	}
	if chatID == "" {
		return nil
	}
	return c.sessions[chatID]
}

// viewLocked builds a defensive view. Caller must hold mu.
func (c *Correlator) viewLocked(sess *session) *SessionView {
	view := &SessionView{
		ChatID:    sess.chatID,
		Artifacts: cloneArtifactsLocked(sess),
		Groups:    make([]*types.ArtifactGroup, 0, len(sess.groupOrder)),
	}
	for _, key := range sess.groupOrder {
		view.Groups = append(view.Groups, sess.groups[key].Clone())
	}
	return view
}

func cloneArtifactsLocked(sess *session) []*types.Artifact {
	result := make([]*types.Artifact, 0, len(sess.order))
	for _, id := range sess.order {
		result = append(result, sess.artifacts[id].Clone())
	}
	return result
}
