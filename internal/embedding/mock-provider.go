package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/skillrank/pkg/utils"
)

// MockProvider is a deterministic provider for tests and demos. It returns a
// fixed-dimension vector derived from the token hash so that the same token
// always gets the same vector.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a provider that produces deterministic vectors of the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 300
	}
	return &MockProvider{dimensions: dimensions}
}

// WordVector returns a deterministic unit vector based on the token hash.
func (m *MockProvider) WordVector(_ context.Context, token string) ([]float32, error) {
	h := HashString(token)
	vec := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		vec[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the vector dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// Close is a no-op for MockProvider.
func (m *MockProvider) Close() error {
	return nil
}
