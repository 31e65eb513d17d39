package embedding

import (
	"context"
	"fmt"
)

// StaticProvider serves a fixed token table. Useful for tests and for small
// hand-curated vocabularies.
type StaticProvider struct {
	dimensions int
	vectors    map[string][]float32
	zero       []float32
}

// NewStaticProvider copies vectors into a new provider. Every vector must have
// the given dimension.
func NewStaticProvider(dimensions int, vectors map[string][]float32) (*StaticProvider, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	table := make(map[string][]float32, len(vectors))
	for token, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("vector for %q has dimension %d, expected %d", token, len(v), dimensions)
		}
		table[token] = append([]float32(nil), v...)
	}
	return &StaticProvider{dimensions: dimensions, vectors: table, zero: make([]float32, dimensions)}, nil
}

// WordVector returns the table entry for token, or the zero vector.
func (s *StaticProvider) WordVector(_ context.Context, token string) ([]float32, error) {
	if v, ok := s.vectors[token]; ok {
		return v, nil
	}
	return s.zero, nil
}

// Dimensions returns the vector dimension.
func (s *StaticProvider) Dimensions() int { return s.dimensions }

// ModelID returns "static".
func (s *StaticProvider) ModelID() string { return "static" }

// Close is a no-op.
func (s *StaticProvider) Close() error { return nil }
