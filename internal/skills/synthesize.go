package skills

import (
	"context"
	"fmt"

	"github.com/hyperjump/skillrank/internal/embedding"
	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/vector"
	"github.com/hyperjump/skillrank/pkg/utils"
	"go.uber.org/zap"
)

// Synthesizer builds one vector per skill list by averaging the provider's
// token vectors.
type Synthesizer struct {
	provider embedding.Provider
	logger   *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger used for batch synthesis.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSynthesizer returns a synthesizer backed by provider.
func NewSynthesizer(provider embedding.Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{provider: provider, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions returns the dimension of every vector the synthesizer produces.
func (s *Synthesizer) Dimensions() int {
	return s.provider.Dimensions()
}

// Synthesize normalizes skills and returns the element-wise mean of the token
// vectors. Unknown tokens contribute the provider's zero vector. A list with no
// tokens left after normalization yields the zero vector.
func (s *Synthesizer) Synthesize(ctx context.Context, skills []string) ([]float32, error) {
	return s.SynthesizeTokens(ctx, Normalize(skills))
}

// SynthesizeTokens averages the vectors of already-normalized tokens.
func (s *Synthesizer) SynthesizeTokens(ctx context.Context, tokens []string) ([]float32, error) {
	dims := s.provider.Dimensions()
	if len(tokens) == 0 {
		return make([]float32, dims), nil
	}
	vecs := make([][]float32, 0, len(tokens))
	for _, tok := range tokens {
		v, err := s.provider.WordVector(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("word vector for %q: %w", tok, err)
		}
		if len(v) != dims {
			return nil, fmt.Errorf("word vector for %q has dimension %d, expected %d", tok, len(v), dims)
		}
		vecs = append(vecs, v)
	}
	return vector.Mean(vecs, dims), nil
}

// SynthesizeAll builds a record per skill set, in input order.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, sets []models.SkillSet) ([]vector.Record, error) {
	records := make([]vector.Record, 0, len(sets))
	zero := 0
	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := s.Synthesize(ctx, set.Skills)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", set.EntityID, err)
		}
		if utils.IsZero(vec) {
			zero++
		}
		records = append(records, vector.Record{EntityID: set.EntityID, Vector: vec})
	}
	s.logger.Debug("synthesized skill vectors",
		zap.Int("count", len(records)),
		zap.Int("zero_vectors", zero),
		zap.String("model", s.provider.ModelID()))
	return records, nil
}
