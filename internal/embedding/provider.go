// Package embedding provides pretrained word-vector providers and a
// process-wide loader for them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/skillrank/internal/config"
	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when the configured model cannot be loaded.
// Nothing can be synthesized without a model, so callers treat it as fatal at startup.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Provider maps a single token to a fixed-size dense vector. Providers are
// read-only after construction and safe for concurrent use.
type Provider interface {
	// WordVector returns the vector for token. Tokens the model does not know
	// yield the zero vector rather than an error.
	WordVector(ctx context.Context, token string) ([]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}

// Open builds the provider described by cfg. Any failure is wrapped in ErrModelUnavailable.
func Open(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "wordvec", "":
		wv, err := LoadWordVectorsFile(cfg.ModelPath, cfg.MaxWords)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		if cfg.Dimensions > 0 && wv.Dimensions() != cfg.Dimensions {
			logger.Warn("word vector dimension differs from config; using file dimension",
				zap.Int("config_dimensions", cfg.Dimensions),
				zap.Int("file_dimensions", wv.Dimensions()))
		}
		logger.Info("word vectors loaded",
			zap.String("model", wv.ModelID()),
			zap.Int("words", wv.Size()),
			zap.Int("dimensions", wv.Dimensions()))
		return wv, nil
	case "onnx":
		p, err := NewONNXProvider(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		logger.Info("onnx model loaded", zap.String("model", cfg.ModelPath), zap.Int("dimensions", cfg.Dimensions))
		return p, nil
	case "mock":
		return NewMockProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: wordvec, onnx, mock)", ErrModelUnavailable, cfg.Provider)
	}
}

// Loader opens a provider at most once per process. The first result,
// success or failure, is returned to every caller.
type Loader struct {
	open     func() (Provider, error)
	once     sync.Once
	provider Provider
	err      error
}

// NewLoader returns a loader that calls open on first use.
func NewLoader(open func() (Provider, error)) *Loader {
	return &Loader{open: open}
}

// NewConfigLoader returns a loader for the provider described by cfg.
func NewConfigLoader(cfg config.EmbeddingConfig, logger *zap.Logger) *Loader {
	return NewLoader(func() (Provider, error) { return Open(cfg, logger) })
}

// Provider returns the loaded provider, loading it on the first call.
func (l *Loader) Provider() (Provider, error) {
	l.once.Do(func() {
		l.provider, l.err = l.open()
		if l.err == nil && l.provider == nil {
			l.err = fmt.Errorf("%w: loader returned no provider", ErrModelUnavailable)
		}
	})
	return l.provider, l.err
}

// Close releases the provider if one was loaded.
func (l *Loader) Close() error {
	if l.provider != nil {
		return l.provider.Close()
	}
	return nil
}
