// Package sqlite persists finalized artifacts to a local database so
// sessions survive restarts and can be bulk-loaded on switch.
//
// The driver is pure Go; the store can be bundled with a desktop client
// without a C toolchain.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justapithecus/loom/types"
)

// artifactRow is the storage shape of an artifact. Media is
// serialized to JSON text.
type artifactRow struct {
	RowID        uint64 `gorm:"primaryKey;autoIncrement"`
	ArtifactID   string `gorm:"type:varchar(64);uniqueIndex;not null"`
	BackendID    string `gorm:"type:varchar(64);index"`
	Kind         string `gorm:"type:varchar(16);not null"`
	Category     string `gorm:"type:varchar(32);index"`
	Format       string `gorm:"type:varchar(32)"`
	Content      string `gorm:"type:text"`
	Media        string `gorm:"type:text"`
	MessageID    string `gorm:"type:varchar(64);index"`
	ParentID     string `gorm:"type:varchar(64);index"`
	ChatID       string `gorm:"type:varchar(64);index;not null"`
	Role         string `gorm:"type:varchar(16)"`
	ChunkCount   int
	SessionIndex int `gorm:"index"`
	Complete     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (artifactRow) TableName() string { return "artifacts" }

// Store implements durable artifact persistence on gorm.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use "file::memory:?cache=shared" for an in-memory store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&artifactRow{}); err != nil {
		return nil, fmt.Errorf("migrate artifact schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open gorm handle. The schema must exist.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveArtifact upserts one artifact keyed by its artifact id. Re-saving
// after a post-completion update overwrites the previous row.
func (s *Store) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if artifact == nil || artifact.ID == "" {
		return fmt.Errorf("save artifact: missing id")
	}
	row, err := toRow(artifact)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "artifact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"content", "media", "chunk_count", "complete", "updated_at",
			}),
		}).
		Create(row).Error
}

// LoadArtifacts returns all artifacts for a chat in session order.
// An unknown chat returns an empty slice, not an error.
func (s *Store) LoadArtifacts(ctx context.Context, chatID string) ([]types.Artifact, error) {
	var rows []artifactRow
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("session_index ASC, row_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load artifacts for %s: %w", chatID, err)
	}
	artifacts := make([]types.Artifact, 0, len(rows))
	for i := range rows {
		artifact, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts, nil
}

// DeleteSession removes all stored artifacts for a chat.
func (s *Store) DeleteSession(ctx context.Context, chatID string) error {
	return s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&artifactRow{}).Error
}

// CountArtifacts returns the number of stored artifacts for a chat.
func (s *Store) CountArtifacts(ctx context.Context, chatID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&artifactRow{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error
	return n, err
}

func toRow(artifact *types.Artifact) (*artifactRow, error) {
	media := ""
	if len(artifact.Media) > 0 {
		b, err := json.Marshal(artifact.Media)
		if err != nil {
			return nil, fmt.Errorf("encode media for %s: %w", artifact.ID, err)
		}
		media = string(b)
	}
	return &artifactRow{
		ArtifactID:   artifact.ID,
		BackendID:    artifact.BackendID,
		Kind:         string(artifact.Kind),
		Category:     string(artifact.Category),
		Format:       artifact.Format,
		Content:      artifact.Content,
		Media:        media,
		MessageID:    artifact.MessageID,
		ParentID:     artifact.ParentID,
		ChatID:       artifact.ChatID,
		Role:         string(artifact.Role),
		ChunkCount:   artifact.ChunkCount,
		SessionIndex: artifact.SessionIndex,
		Complete:     artifact.Complete,
		CreatedAt:    artifact.CreatedAt,
		UpdatedAt:    artifact.UpdatedAt,
	}, nil
}

func fromRow(row *artifactRow) (*types.Artifact, error) {
	artifact := &types.Artifact{
		ID:           row.ArtifactID,
		BackendID:    row.BackendID,
		Kind:         types.ArtifactKind(row.Kind),
		Category:     types.Category(row.Category),
		Format:       row.Format,
		Content:      row.Content,
		MessageID:    row.MessageID,
		ParentID:     row.ParentID,
		ChatID:       row.ChatID,
		Role:         types.Role(row.Role),
		ChunkCount:   row.ChunkCount,
		SessionIndex: row.SessionIndex,
		Complete:     row.Complete,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Media != "" {
		if err := json.Unmarshal([]byte(row.Media), &artifact.Media); err != nil {
			return nil, fmt.Errorf("decode media for %s: %w", row.ArtifactID, err)
		}
	}
	return artifact, nil
}
