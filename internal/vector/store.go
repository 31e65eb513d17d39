// Package vector holds per-kind entity vectors and the similarity math used to compare them.
package vector

import (
	"fmt"
	"sync"
)

// Record is one entity's skill vector.
type Record struct {
	EntityID int64
	Vector   []float32
}

// Store is an in-memory id → vector table for one entity kind. Iteration
// order is insertion order; overwriting an id keeps its original position.
// Every mutation bumps the generation so readers can tell when derived state
// (the cluster snapshot) is out of date.
type Store struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	index      map[int64]int
	generation uint64
	mu         sync.RWMutex
}

// NewStore creates an empty store. dimensions <= 0 accepts the dimension of
// the first vector inserted.
func NewStore(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		index:      make(map[int64]int),
	}
}

// Upsert stores vec under id, replacing any previous vector.
func (s *Store) Upsert(id int64, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDim(len(vec)); err != nil {
		return err
	}
	cp := append([]float32(nil), vec...)
	if i, ok := s.index[id]; ok {
		s.vectors[i] = cp
	} else {
		s.index[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, cp)
	}
	s.generation++
	return nil
}

// Remove drops id from the store and reports whether it was present.
// Removing an unknown id leaves the generation unchanged.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	// Rebuild the slices to keep the remaining records in insertion order.
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	s.vectors = append(s.vectors[:i], s.vectors[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.ids); j++ {
		s.index[s.ids[j]] = j
	}
	s.generation++
	return true
}

// Replace swaps the whole contents for records. Later duplicates of an id
// overwrite earlier ones in place.
func (s *Store) Replace(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dims := s.dimensions
	ids := make([]int64, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	index := make(map[int64]int, len(records))
	for _, r := range records {
		if dims <= 0 {
			dims = len(r.Vector)
		}
		if len(r.Vector) != dims {
			return fmt.Errorf("entity %d: vector dimension mismatch: got %d, expected %d", r.EntityID, len(r.Vector), dims)
		}
		cp := append([]float32(nil), r.Vector...)
		if i, ok := index[r.EntityID]; ok {
			vectors[i] = cp
			continue
		}
		index[r.EntityID] = len(ids)
		ids = append(ids, r.EntityID)
		vectors = append(vectors, cp)
	}

	if s.dimensions <= 0 && len(records) > 0 {
		s.dimensions = dims
	}
	s.ids = ids
	s.vectors = vectors
	s.index = index
	s.generation++
	return nil
}

// Snapshot returns the records in insertion order together with the
// generation they were read at. Vectors are shared with the store; they are
// never mutated in place, so callers may read them freely but must not write.
func (s *Store) Snapshot() ([]Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.ids))
	for i, id := range s.ids {
		out[i] = Record{EntityID: id, Vector: s.vectors[i]}
	}
	return out, s.generation
}

// Get returns the vector stored for id.
func (s *Store) Get(id int64) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.vectors[i], true
}

// Size returns the number of records.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Generation returns the mutation counter.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Dimensions returns the vector dimension, or 0 if not yet known.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

func (s *Store) checkDim(n int) error {
	if s.dimensions <= 0 {
		s.dimensions = n
		return nil
	}
	if n != s.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", n, s.dimensions)
	}
	return nil
}
