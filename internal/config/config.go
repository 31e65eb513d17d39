// Package config provides configuration loading and structs for skillrank.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Watch      WatchConfig      `yaml:"watch"`
}

// StorageConfig holds the path of the reference SQLite database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and configures the word-embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "wordvec", "onnx" or "mock".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	// MaxWords caps how many rows of a .vec file are read; 0 reads all.
	MaxWords  int `yaml:"max_words"`
	MaxTokens int `yaml:"max_tokens"`
	CacheSize int `yaml:"cache_size"`
}

// ClusteringConfig holds per-kind cluster counts and k-means settings.
type ClusteringConfig struct {
	PostingClusters   int     `yaml:"posting_clusters"`
	CandidateClusters int     `yaml:"candidate_clusters"`
	Seed              uint64  `yaml:"seed"`
	MaxIterations     int     `yaml:"max_iterations"`
	// Tolerance is relative to the data variance. Unset or negative means 1e-4; 0 is allowed.
	Tolerance *float64 `yaml:"tolerance"`
	NInit             int     `yaml:"n_init"`
}

// RecommendConfig holds recommendation output settings.
type RecommendConfig struct {
	// DefaultLimit trims results when > 0; 0 returns every ranked id.
	DefaultLimit int `yaml:"default_limit"`
}

// WatchConfig holds corpus-file watch settings.
type WatchConfig struct {
	CorpusFile string        `yaml:"corpus_file"`
	Debounce   time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.CorpusFile != "" {
		cfg.Watch.CorpusFile = expandPath(cfg.Watch.CorpusFile, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
