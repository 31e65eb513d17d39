package corpus

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/storage"
	"go.uber.org/zap"
)

// Notifier receives entity change events. *recommend.Service implements it.
type Notifier interface {
	EntityChanged(ctx context.Context, kind models.Kind, id int64, skills []string, eligible bool) error
	EntityDeleted(kind models.Kind, id int64) bool
}

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// Prune deletes stored entities that are missing from the corpus.
	Prune bool
	// Notifier, when set, is told about every created, changed or deleted entity.
	Notifier Notifier
	Logger   *zap.Logger
}

// Summary counts what Apply did.
type Summary struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	// Changed lists the kinds that had at least one change.
	Changed []models.Kind
}

// Touched reports whether kind had a change.
func (s Summary) Touched(kind models.Kind) bool {
	return slices.Contains(s.Changed, kind)
}

// Apply writes the corpus into store, optionally pruning entities that are no
// longer listed, and notifies opts.Notifier of each effective change.
// Unchanged entities are skipped so the cluster indexes stay fresh.
func Apply(ctx context.Context, store storage.Storage, c *Corpus, opts ApplyOptions) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var sum Summary
	for _, kind := range models.Kinds {
		existing, err := store.ListEntities(ctx, kind, 0, 0)
		if err != nil {
			return sum, fmt.Errorf("list %s: %w", kind, err)
		}
		current := make(map[int64]*models.Entity, len(existing))
		for _, e := range existing {
			current[e.ID] = e
		}

		var changed []*models.Entity
		listed := make(map[int64]bool)
		for _, r := range c.Records(kind) {
			listed[r.ID] = true
			e := &models.Entity{ID: r.ID, Kind: kind, Eligible: r.IsEligible(), Skills: r.Skills}
			prev, ok := current[r.ID]
			switch {
			case !ok:
				sum.Created++
			case prev.Eligible != e.Eligible || !slices.Equal(prev.Skills, e.Skills):
				sum.Updated++
			default:
				sum.Unchanged++
				continue
			}
			changed = append(changed, e)
		}
		if err := store.BatchUpsertEntities(ctx, changed); err != nil {
			return sum, fmt.Errorf("store %s: %w", kind, err)
		}

		var deleted []int64
		if opts.Prune {
			for _, e := range existing {
				if listed[e.ID] {
					continue
				}
				if err := store.DeleteEntity(ctx, kind, e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
					return sum, fmt.Errorf("delete %s %d: %w", kind, e.ID, err)
				}
				deleted = append(deleted, e.ID)
			}
			sum.Deleted += len(deleted)
		}

		if len(changed) > 0 || len(deleted) > 0 {
			sum.Changed = append(sum.Changed, kind)
		}
		if opts.Notifier == nil {
			continue
		}
		for _, e := range changed {
			if err := opts.Notifier.EntityChanged(ctx, kind, e.ID, e.Skills, e.Eligible); err != nil {
				return sum, err
			}
		}
		for _, id := range deleted {
			opts.Notifier.EntityDeleted(kind, id)
		}
	}

	logger.Info("corpus applied",
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("deleted", sum.Deleted))
	return sum, nil
}
