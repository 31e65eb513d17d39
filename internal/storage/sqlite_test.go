package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/skillrank/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	e := &models.Entity{
		ID:       7,
		Kind:     models.KindCandidate,
		Eligible: true,
		Skills:   []string{"Python", "SQL"},
	}
	if err := store.UpsertEntity(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	got, err := store.GetEntity(ctx, models.KindCandidate, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Eligible || len(got.Skills) != 2 || got.Skills[0] != "Python" {
		t.Errorf("got %+v", got)
	}
	if got.Kind != models.KindCandidate {
		t.Errorf("kind=%s", got.Kind)
	}

	// Same id under the other kind is a different entity.
	if _, err := store.GetEntity(ctx, models.KindPosting, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for posting 7, got %v", err)
	}

	e.Eligible = false
	e.Skills = []string{"Go"}
	if err := store.UpsertEntity(ctx, e); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetEntity(ctx, models.KindCandidate, 7)
	if got.Eligible || got.Skills[0] != "Go" {
		t.Errorf("update not applied: %+v", got)
	}

	list, err := store.ListEntities(ctx, models.KindCandidate, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 entity, got %d", len(list))
	}

	if err := store.DeleteEntity(ctx, models.KindCandidate, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEntity(ctx, models.KindCandidate, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteEntity(ctx, models.KindCandidate, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_InvalidKind(t *testing.T) {
	store := newTestStorage(t)
	err := store.UpsertEntity(context.Background(), &models.Entity{ID: 1, Kind: "recruiter"})
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSQLiteStorage_SkillListsEligibleOnly(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	batch := []*models.Entity{
		{ID: 3, Kind: models.KindPosting, Eligible: true, Skills: []string{"java", "spring"}},
		{ID: 1, Kind: models.KindPosting, Eligible: false, Skills: []string{"cobol"}},
		{ID: 2, Kind: models.KindPosting, Eligible: true, Skills: nil},
		{ID: 9, Kind: models.KindCandidate, Eligible: true, Skills: []string{"welding"}},
	}
	if err := store.BatchUpsertEntities(ctx, batch); err != nil {
		t.Fatal(err)
	}

	sets, err := store.SkillLists(ctx, models.KindPosting)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 eligible postings, got %d", len(sets))
	}
	if sets[0].EntityID != 2 || sets[1].EntityID != 3 {
		t.Errorf("expected ids [2 3], got [%d %d]", sets[0].EntityID, sets[1].EntityID)
	}
	if len(sets[0].Skills) != 0 {
		t.Errorf("nil skills should round-trip as empty, got %v", sets[0].Skills)
	}

	// Ineligible entities are still readable as a query.
	skills, err := store.EntitySkills(ctx, models.KindPosting, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 || skills[0] != "cobol" {
		t.Errorf("EntitySkills=%v", skills)
	}
	if _, err := store.EntitySkills(ctx, models.KindPosting, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	n, _ := store.CountEntities(ctx, models.KindPosting)
	if n != 3 {
		t.Errorf("CountEntities=%d, want 3", n)
	}
	n, _ = store.CountEligible(ctx, models.KindPosting)
	if n != 2 {
		t.Errorf("CountEligible=%d, want 2", n)
	}
}

func TestSQLiteStorage_VectorCache(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_ = store.BatchUpsertEntities(ctx, []*models.Entity{
		{ID: 1, Kind: models.KindCandidate, Eligible: true, Skills: []string{"python"}},
		{ID: 2, Kind: models.KindCandidate, Eligible: true, Skills: []string{"sql"}},
	})
	err := store.PutVectors(ctx, models.KindCandidate, "cc.en.300.vec", map[int64][]float32{
		1: {0.5, -1.25, 3},
		2: {1, 0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	cached, err := store.CachedVectors(ctx, models.KindCandidate, "cc.en.300.vec")
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached vectors, got %d", len(cached))
	}
	v := cached[1]
	if len(v) != 3 || v[0] != 0.5 || v[1] != -1.25 || v[2] != 3 {
		t.Errorf("vector round trip: %v", v)
	}

	other, _ := store.CachedVectors(ctx, models.KindCandidate, "mock")
	if len(other) != 0 {
		t.Error("vectors from another model must not be returned")
	}

	// Unchanged skills keep the cache; changed skills drop it.
	_ = store.UpsertEntity(ctx, &models.Entity{ID: 1, Kind: models.KindCandidate, Eligible: true, Skills: []string{"python"}})
	_ = store.UpsertEntity(ctx, &models.Entity{ID: 2, Kind: models.KindCandidate, Eligible: true, Skills: []string{"sql", "go"}})
	cached, _ = store.CachedVectors(ctx, models.KindCandidate, "cc.en.300.vec")
	if _, ok := cached[1]; !ok {
		t.Error("unchanged skills should keep the cached vector")
	}
	if _, ok := cached[2]; ok {
		t.Error("changed skills should drop the cached vector")
	}
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.UpsertEntity(ctx, &models.Entity{ID: 1, Kind: models.KindPosting, Eligible: true}); err != nil {
		t.Fatal(err)
	}
	n, err := store.CountEntities(ctx, models.KindPosting)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountEntities=%d, want 1", n)
	}
}
