// Package trace defines the optional traceability collaborator.
//
// Installations that audit backend activity mirror every artifact
// registration into an external system. Registration is fire-and-forget:
// the correlator logs and drops failures, never propagates them.
package trace

import (
	"context"
	"time"
)

// Record describes one artifact registration.
type Record struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Format          string    `json:"format,omitempty"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
	ChatID          string    `json:"chat_id"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
}

// Recorder receives artifact registrations.
type Recorder interface {
	// RegisterArtifact submits one record. Callers treat failures as
	// advisory.
	RegisterArtifact(ctx context.Context, record Record) error

	// Close releases recorder resources.
	Close() error
}

// Nop is a Recorder that discards every record.
type Nop struct{}

// RegisterArtifact discards the record.
func (Nop) RegisterArtifact(context.Context, Record) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

// Verify Nop implements the interface.
var _ Recorder = Nop{}
