// Package notify fans artifact and session notifications out to
// in-process subscribers (UI renderer, cross-window relay) and to the
// configured downstream adapters.
//
// Delivery is best-effort and synchronous per subscriber; a subscriber
// must not block. Payloads are plain JSON-serializable records carrying
// no live references into correlator state.
package notify

import "sync"

// ArtifactEvent is published for every finalized or updated artifact.
type ArtifactEvent struct {
	ChatID     string `json:"chat_id"`
	ArtifactID string `json:"artifact_id"`
	Kind       string `json:"kind"`
	Category   string `json:"category"`
	MessageID  string `json:"message_id,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	Updated    bool   `json:"updated,omitempty"`
}

// SessionEvent is published after a session switch completes.
type SessionEvent struct {
	ChatID        string `json:"chat_id"`
	ArtifactCount int    `json:"artifact_count"`
	GroupCount    int    `json:"group_count"`
}

// Subscriber receives notifications.
type Subscriber interface {
	OnArtifact(event ArtifactEvent)
	OnSession(event SessionEvent)
}

// SubscriberFuncs adapts two functions to the Subscriber interface.
// Either may be nil.
type SubscriberFuncs struct {
	Artifact func(event ArtifactEvent)
	Session  func(event SessionEvent)
}

// OnArtifact calls the Artifact func when set.
func (s SubscriberFuncs) OnArtifact(event ArtifactEvent) {
	if s.Artifact != nil {
		s.Artifact(event)
	}
}

// OnSession calls the Session func when set.
func (s SubscriberFuncs) OnSession(event SessionEvent) {
	if s.Session != nil {
		s.Session(event)
	}
}

// Stats counts hub activity.
type Stats struct {
	ArtifactEvents int64
	SessionEvents  int64
	Subscribers    int
}

// Hub is the notification fan-out point.
// Thread-safe: publishes may race with subscriptions.
type Hub struct {
	mu    sync.RWMutex
	subs  []Subscriber
	stats Stats
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a subscriber. Subscribers cannot be removed; the
// hub lives as long as the correlator that owns it.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
}

// PublishArtifact delivers an artifact event to all subscribers.
func (h *Hub) PublishArtifact(event ArtifactEvent) {
	h.mu.Lock()
	h.stats.ArtifactEvents++
	subs := h.subs
	h.mu.Unlock()
	for _, s := range subs {
		s.OnArtifact(event)
	}
}

// PublishSession delivers a session event to all subscribers.
func (h *Hub) PublishSession(event SessionEvent) {
	h.mu.Lock()
	h.stats.SessionEvents++
	subs := h.subs
	h.mu.Unlock()
	for _, s := range subs {
		s.OnSession(event)
	}
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.stats
	s.Subscribers = len(h.subs)
	return s
}
