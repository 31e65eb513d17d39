package config

import "time"

// Default cluster counts per entity kind. Postings get a finer partition than
// candidates; each kind needs at least this many eligible entities to cluster.
const (
	DefaultPostingClusters   = 8
	DefaultCandidateClusters = 4
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/skillrank/data/skillrank.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "wordvec"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "wordvec" {
		cfg.Embedding.ModelPath = "/usr/local/var/skillrank/data/models/cc.en.300.vec"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 300
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 16
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Clustering.PostingClusters == 0 {
		cfg.Clustering.PostingClusters = DefaultPostingClusters
	}
	if cfg.Clustering.CandidateClusters == 0 {
		cfg.Clustering.CandidateClusters = DefaultCandidateClusters
	}
	if cfg.Clustering.MaxIterations == 0 {
		cfg.Clustering.MaxIterations = 300
	}
	if cfg.Clustering.Tolerance == nil || *cfg.Clustering.Tolerance < 0 {
		tol := 1e-4
		cfg.Clustering.Tolerance = &tol
	}
	if cfg.Clustering.NInit == 0 {
		cfg.Clustering.NInit = 1
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
