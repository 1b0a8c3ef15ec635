// Package adapter defines the outbound notification boundary.
//
// Adapters deliver artifact and session notifications to downstream
// systems (cross-window relays, automation hooks). The correlator owns
// adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/notify"
	"github.com/justapithecus/loom/types"
)

// Event type discriminators for the outbound envelope.
const (
	EventTypeArtifact = "artifact"
	EventTypeSession  = "session"
)

// Event is the payload published to downstream systems. Exactly one of
// Artifact or Session is set, per EventType.
type Event struct {
	ContractVersion string                `json:"contract_version"`
	EventType       string                `json:"event_type"`
	ChatID          string                `json:"chat_id"`
	Timestamp       string                `json:"timestamp"` // ISO 8601
	Artifact        *notify.ArtifactEvent `json:"artifact,omitempty"`
	Session         *notify.SessionEvent  `json:"session,omitempty"`
}

// Adapter publishes notification events to a downstream system.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Publish sends one event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *Event) error

	// Close releases adapter resources.
	Close() error
}

// NewArtifactEvent wraps an artifact notification in the outbound
// envelope.
func NewArtifactEvent(e notify.ArtifactEvent) *Event {
	return &Event{
		ContractVersion: types.Version,
		EventType:       EventTypeArtifact,
		ChatID:          e.ChatID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Artifact:        &e,
	}
}

// NewSessionEvent wraps a session notification in the outbound
// envelope.
func NewSessionEvent(e notify.SessionEvent) *Event {
	return &Event{
		ContractVersion: types.Version,
		EventType:       EventTypeSession,
		ChatID:          e.ChatID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Session:         &e,
	}
}

// Subscriber bridges an adapter onto the notification hub. Delivery is
// fire-and-forget with a bounded per-publish timeout; failures are
// logged and dropped so a slow downstream never stalls ingestion.
func Subscriber(a Adapter, logger *log.Logger) notify.Subscriber {
	if logger == nil {
		logger = log.NewLogger("adapter")
	}
	publish := func(event *Event) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Publish(ctx, event); err != nil {
				logger.Warn("adapter publish failed", map[string]any{
					"event_type": event.EventType,
					"chat_id":    event.ChatID,
					"error":      err.Error(),
				})
			}
		}()
	}
	return notify.SubscriberFuncs{
		Artifact: func(e notify.ArtifactEvent) { publish(NewArtifactEvent(e)) },
		Session:  func(e notify.SessionEvent) { publish(NewSessionEvent(e)) },
	}
}
