// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/skillrank/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	memory := dbPath == ":memory:"
	if dir := filepath.Dir(dbPath); !memory && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id INTEGER NOT NULL,
		eligible INTEGER NOT NULL DEFAULT 1,
		skills TEXT NOT NULL,
		vector BLOB,
		vector_model TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_eligible ON entities(kind, eligible);
	`
	_, err := db.Exec(schema)
	return err
}

// A changed skill list drops the cached vector; an unchanged one keeps it.
const upsertEntitySQL = `
	INSERT INTO entities (kind, id, eligible, skills, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET
		eligible = excluded.eligible,
		vector = CASE WHEN entities.skills = excluded.skills THEN entities.vector ELSE NULL END,
		vector_model = CASE WHEN entities.skills = excluded.skills THEN entities.vector_model ELSE NULL END,
		skills = excluded.skills,
		updated_at = excluded.updated_at`

// UpsertEntity inserts or replaces an entity.
func (s *SQLiteStorage) UpsertEntity(ctx context.Context, e *models.Entity) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid entity kind %q", e.Kind)
	}
	skillsJSON, err := marshalSkills(e.Skills)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, upsertEntitySQL,
		string(e.Kind), e.ID, e.Eligible, skillsJSON, e.UpdatedAt, e.UpdatedAt)
	return err
}

// GetEntity returns an entity by kind and ID.
func (s *SQLiteStorage) GetEntity(ctx context.Context, kind models.Kind, id int64) (*models.Entity, error) {
	var e models.Entity
	var k, skillsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, id, eligible, skills, updated_at
		 FROM entities WHERE kind = ? AND id = ?`, string(kind), id,
	).Scan(&k, &e.ID, &e.Eligible, &skillsJSON, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.Kind = models.Kind(k)
	if e.Skills, err = unmarshalSkills(skillsJSON); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEntity removes an entity. It returns ErrNotFound if nothing was deleted.
func (s *SQLiteStorage) DeleteEntity(ctx context.Context, kind models.Kind, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

// ListEntities returns entities of kind ordered by ID. limit <= 0 returns all.
func (s *SQLiteStorage) ListEntities(ctx context.Context, kind models.Kind, offset, limit int) ([]*models.Entity, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, eligible, skills, updated_at
		 FROM entities WHERE kind = ? ORDER BY id LIMIT ? OFFSET ?`,
		string(kind), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		var e models.Entity
		var k, skillsJSON string
		if err := rows.Scan(&k, &e.ID, &e.Eligible, &skillsJSON, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Kind = models.Kind(k)
		if e.Skills, err = unmarshalSkills(skillsJSON); err != nil {
			return nil, fmt.Errorf("%s %d: %w", k, e.ID, err)
		}
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}

// BatchUpsertEntities upserts multiple entities in a transaction.
func (s *SQLiteStorage) BatchUpsertEntities(ctx context.Context, entities []*models.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertEntitySQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entities {
		if !e.Kind.Valid() {
			return fmt.Errorf("entity %d: invalid kind %q", e.ID, e.Kind)
		}
		skillsJSON, err := marshalSkills(e.Skills)
		if err != nil {
			return err
		}
		e.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, string(e.Kind), e.ID, e.Eligible, skillsJSON, now, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SkillLists returns the skill lists of every eligible entity of kind, ordered by ID.
func (s *SQLiteStorage) SkillLists(ctx context.Context, kind models.Kind) ([]models.SkillSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, skills FROM entities WHERE kind = ? AND eligible = 1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []models.SkillSet
	for rows.Next() {
		var set models.SkillSet
		var skillsJSON string
		if err := rows.Scan(&set.EntityID, &skillsJSON); err != nil {
			return nil, err
		}
		if set.Skills, err = unmarshalSkills(skillsJSON); err != nil {
			return nil, fmt.Errorf("%s %d: %w", kind, set.EntityID, err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// EntitySkills returns the skill list of one entity regardless of eligibility.
func (s *SQLiteStorage) EntitySkills(ctx context.Context, kind models.Kind, id int64) ([]string, error) {
	var skillsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT skills FROM entities WHERE kind = ? AND id = ?`, string(kind), id,
	).Scan(&skillsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalSkills(skillsJSON)
}

// PutVectors caches skill vectors produced by modelID. Rows that no longer exist are skipped.
func (s *SQLiteStorage) PutVectors(ctx context.Context, kind models.Kind, modelID string, vectors map[int64][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE entities SET vector = ?, vector_model = ? WHERE kind = ? AND id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, float32SliceToBytes(vec), modelID, string(kind), id); err != nil {
			return fmt.Errorf("%s %d: %w", kind, id, err)
		}
	}
	return tx.Commit()
}

// CachedVectors returns the cached vectors of eligible entities of kind that were produced by modelID.
func (s *SQLiteStorage) CachedVectors(ctx context.Context, kind models.Kind, modelID string) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector FROM entities
		 WHERE kind = ? AND eligible = 1 AND vector IS NOT NULL AND vector_model = ?`,
		string(kind), modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = bytesToFloat32Slice(blob)
	}
	return out, rows.Err()
}

// CountEntities returns the number of entities of kind.
func (s *SQLiteStorage) CountEntities(ctx context.Context, kind models.Kind) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind = ?`, string(kind)).Scan(&count)
	return count, err
}

// CountEligible returns the number of eligible entities of kind.
func (s *SQLiteStorage) CountEligible(ctx context.Context, kind models.Kind) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE kind = ? AND eligible = 1`, string(kind)).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func marshalSkills(skills []string) (string, error) {
	if skills == nil {
		skills = []string{}
	}
	b, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("failed to marshal skills: %w", err)
	}
	return string(b), nil
}

func unmarshalSkills(s string) ([]string, error) {
	var skills []string
	if s == "" {
		return skills, nil
	}
	if err := json.Unmarshal([]byte(s), &skills); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skills: %w", err)
	}
	return skills, nil
}

// Vectors are stored as little-endian float32s.
func float32SliceToBytes(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
