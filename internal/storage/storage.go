// Package storage defines the persistence interface for postings and candidates.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/skillrank/internal/models"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Storage defines entity persistence operations.
type Storage interface {
	// Entity operations
	UpsertEntity(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, kind models.Kind, id int64) (*models.Entity, error)
	DeleteEntity(ctx context.Context, kind models.Kind, id int64) error
	ListEntities(ctx context.Context, kind models.Kind, offset, limit int) ([]*models.Entity, error)

	// Batch operations
	BatchUpsertEntities(ctx context.Context, entities []*models.Entity) error

	// Matching views
	SkillLists(ctx context.Context, kind models.Kind) ([]models.SkillSet, error)
	EntitySkills(ctx context.Context, kind models.Kind, id int64) ([]string, error)

	// Cached skill vectors, keyed by the model that produced them
	PutVectors(ctx context.Context, kind models.Kind, modelID string, vectors map[int64][]float32) error
	CachedVectors(ctx context.Context, kind models.Kind, modelID string) (map[int64][]float32, error)

	// Stats
	CountEntities(ctx context.Context, kind models.Kind) (int64, error)
	CountEligible(ctx context.Context, kind models.Kind) (int64, error)

	Close() error
}
