// Package recommend ranks postings for candidates and candidates for postings.
// It owns one vector store and one cluster index per kind and keeps them in
// step with the data-access layer through explicit change hooks.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/skillrank/internal/cluster"
	"github.com/hyperjump/skillrank/internal/config"
	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/ranking"
	"github.com/hyperjump/skillrank/internal/skills"
	"github.com/hyperjump/skillrank/internal/storage"
	"github.com/hyperjump/skillrank/internal/vector"
	"go.uber.org/zap"
)

// Source supplies skill lists from the data-access layer.
type Source interface {
	// SkillLists returns the skills of every eligible entity of kind.
	SkillLists(ctx context.Context, kind models.Kind) ([]models.SkillSet, error)
	// EntitySkills returns one entity's skills regardless of eligibility, or
	// an error wrapping storage.ErrNotFound.
	EntitySkills(ctx context.Context, kind models.Kind, id int64) ([]string, error)
}

// VectorCache is implemented by sources that can persist synthesized vectors
// so a restart does not have to re-embed every skill list.
type VectorCache interface {
	CachedVectors(ctx context.Context, kind models.Kind, modelID string) (map[int64][]float32, error)
	PutVectors(ctx context.Context, kind models.Kind, modelID string, vectors map[int64][]float32) error
}

// KindStatus describes the cached state of one kind.
type KindStatus struct {
	Kind         models.Kind `json:"kind"`
	Loaded       bool        `json:"loaded"`
	Size         int         `json:"size"`
	K            int         `json:"k"`
	State        string      `json:"state"`
	Generation   uint64      `json:"generation"`
	ClusterSizes []int       `json:"cluster_sizes,omitempty"`
	BuiltAt      time.Time   `json:"built_at"`
	Iterations   int         `json:"iterations,omitempty"`
}

type kindState struct {
	kind   models.Kind
	store  *vector.Store
	index  *cluster.Index
	mu     sync.Mutex // guards loaded and serializes loads with change hooks
	loaded bool
}

// Service is safe for concurrent use.
type Service struct {
	source  Source
	cache   VectorCache
	synth   *skills.Synthesizer
	modelID string
	logger  *zap.Logger

	clusters map[models.Kind]int
	kmeans   cluster.Options
	kinds    map[models.Kind]*kindState
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Cluster builds log through it too.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClusters sets K for one kind.
func WithClusters(kind models.Kind, k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.clusters[kind] = k
		}
	}
}

// WithKMeansOptions sets the k-means options used by both indexes.
func WithKMeansOptions(opts cluster.Options) Option {
	return func(s *Service) { s.kmeans = opts }
}

// WithClusteringConfig applies K and k-means settings from config.
func WithClusteringConfig(cfg config.ClusteringConfig) Option {
	return func(s *Service) {
		WithClusters(models.KindPosting, cfg.PostingClusters)(s)
		WithClusters(models.KindCandidate, cfg.CandidateClusters)(s)
		s.kmeans = cluster.Options{
			Seed:          cfg.Seed,
			MaxIterations: cfg.MaxIterations,
			Tolerance:     tolerance(cfg.Tolerance),
			NInit:         cfg.NInit,
		}
	}
}

// tolerance maps an unset config value to a negative one, which k-means reads as its default.
func tolerance(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

// NewService wires a service over source. If source also implements
// VectorCache, synthesized vectors are cached through it.
func NewService(source Source, synth *skills.Synthesizer, modelID string, opts ...Option) *Service {
	s := &Service{
		source:  source,
		synth:   synth,
		modelID: modelID,
		logger:  zap.NewNop(),
		clusters: map[models.Kind]int{
			models.KindPosting:   config.DefaultPostingClusters,
			models.KindCandidate: config.DefaultCandidateClusters,
		},
		kmeans: cluster.DefaultOptions(),
		kinds:  make(map[models.Kind]*kindState, len(models.Kinds)),
	}
	if c, ok := source.(VectorCache); ok {
		s.cache = c
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, kind := range models.Kinds {
		store := vector.NewStore(synth.Dimensions())
		s.kinds[kind] = &kindState{
			kind:  kind,
			store: store,
			index: cluster.NewIndex(store, s.clusters[kind],
				cluster.WithName(string(kind)),
				cluster.WithOptions(s.kmeans),
				cluster.WithLogger(s.logger)),
		}
	}
	return s
}

// Recommend ranks entities of targetKind for the entity queryID of queryKind,
// best match first. Callers must keep the returned order.
func (s *Service) Recommend(ctx context.Context, queryID int64, queryKind, targetKind models.Kind) ([]models.Recommendation, error) {
	resp, err := s.Query(ctx, queryID, queryKind, targetKind)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// RecommendPostings ranks postings for a candidate.
func (s *Service) RecommendPostings(ctx context.Context, candidateID int64) ([]models.Recommendation, error) {
	return s.Recommend(ctx, candidateID, models.KindCandidate, models.KindPosting)
}

// RecommendCandidates ranks candidates for a posting.
func (s *Service) RecommendCandidates(ctx context.Context, postingID int64) ([]models.Recommendation, error) {
	return s.Recommend(ctx, postingID, models.KindPosting, models.KindCandidate)
}

// Query is Recommend with the partition type and timing attached.
func (s *Service) Query(ctx context.Context, queryID int64, queryKind, targetKind models.Kind) (*models.RecommendResponse, error) {
	start := time.Now()
	if !queryKind.Valid() || !targetKind.Valid() {
		return nil, fmt.Errorf("%w: %q → %q", ErrInvalidKind, queryKind, targetKind)
	}

	query, err := s.queryVector(ctx, queryKind, queryID)
	if err != nil {
		return nil, err
	}

	target := s.kinds[targetKind]
	if err := s.ensureLoaded(ctx, target); err != nil {
		return nil, err
	}
	part, err := target.index.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", targetKind, err)
	}
	recs := ranking.Rank(query, part)
	_, clustered := part.(cluster.Clustered)

	elapsed := time.Since(start)
	s.logger.Debug("recommendation served",
		zap.String("query_kind", string(queryKind)),
		zap.Int64("query_id", queryID),
		zap.String("target_kind", string(targetKind)),
		zap.Bool("clustered", clustered),
		zap.Int("results", len(recs)),
		zap.Duration("duration", elapsed))

	return &models.RecommendResponse{
		QueryID:    queryID,
		QueryKind:  queryKind,
		TargetKind: targetKind,
		Clustered:  clustered,
		Results:    recs,
		QueryTime:  elapsed.Milliseconds(),
	}, nil
}

// queryVector prefers the cached vector and otherwise synthesizes from the
// entity's stored skills, so ineligible entities can still be queried.
func (s *Service) queryVector(ctx context.Context, kind models.Kind, id int64) ([]float32, error) {
	if vec, ok := s.kinds[kind].store.Get(id); ok {
		return vec, nil
	}
	list, err := s.source.EntitySkills(ctx, kind, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %d", ErrUnknownEntity, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %d skills: %w", kind, id, err)
	}
	return s.synth.Synthesize(ctx, list)
}

// EntityChanged must be called after an entity is created, its skills change,
// or its eligibility flips. Eligible entities are re-synthesized; ineligible
// ones are dropped. The cluster index goes stale and rebuilds on next read.
func (s *Service) EntityChanged(ctx context.Context, kind models.Kind, id int64, skillList []string, eligible bool) error {
	st, err := s.state(kind)
	if err != nil {
		return err
	}
	if !eligible {
		s.EntityDeleted(kind, id)
		return nil
	}
	vec, err := s.synth.Synthesize(ctx, skillList)
	if err != nil {
		return fmt.Errorf("synthesize %s %d: %w", kind, id, err)
	}

	st.mu.Lock()
	// Before the first load the store is empty; the load reads the change from the source.
	if st.loaded {
		err = st.store.Upsert(id, vec)
	}
	st.mu.Unlock()
	if err != nil {
		return err
	}
	s.cacheVectors(ctx, kind, map[int64][]float32{id: vec})
	return nil
}

// EntityDeleted drops an entity and reports whether it was cached.
func (s *Service) EntityDeleted(kind models.Kind, id int64) bool {
	st, err := s.state(kind)
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store.Remove(id)
}

// Invalidate marks the kind's cluster index stale. With rebuild set it also
// builds the new partition before returning.
func (s *Service) Invalidate(ctx context.Context, kind models.Kind, rebuild bool) error {
	st, err := s.state(kind)
	if err != nil {
		return err
	}
	if !rebuild {
		st.index.Invalidate()
		return nil
	}
	if err := s.ensureLoaded(ctx, st); err != nil {
		return err
	}
	_, err = st.index.Rebuild(ctx)
	return err
}

// Reload refetches every eligible entity of kind from the source and replaces the store.
func (s *Service) Reload(ctx context.Context, kind models.Kind) error {
	st, err := s.state(kind)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.load(ctx, st)
}

// Warm loads and clusters every kind.
func (s *Service) Warm(ctx context.Context) error {
	for _, kind := range models.Kinds {
		st := s.kinds[kind]
		if err := s.ensureLoaded(ctx, st); err != nil {
			return err
		}
		if _, err := st.index.Get(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the cached state of kind.
func (s *Service) Status(kind models.Kind) KindStatus {
	st, err := s.state(kind)
	if err != nil {
		return KindStatus{Kind: kind}
	}
	st.mu.Lock()
	loaded := st.loaded
	st.mu.Unlock()

	status := KindStatus{
		Kind:       kind,
		Loaded:     loaded,
		Size:       st.store.Size(),
		K:          st.index.K(),
		State:      st.index.State().String(),
		Generation: st.store.Generation(),
	}
	if snap := st.index.Current(); snap != nil {
		status.ClusterSizes = snap.ClusterSizes()
		status.BuiltAt = snap.BuiltAt
		status.Iterations = snap.Iterations
	}
	return status
}

func (s *Service) state(kind models.Kind) (*kindState, error) {
	st, ok := s.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return st, nil
}

func (s *Service) ensureLoaded(ctx context.Context, st *kindState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loaded {
		return nil
	}
	return s.load(ctx, st)
}

// load replaces the store with the source's eligible entities. st.mu must be held.
func (s *Service) load(ctx context.Context, st *kindState) error {
	start := time.Now()
	sets, err := s.source.SkillLists(ctx, st.kind)
	if err != nil {
		return fmt.Errorf("fetch %s skill lists: %w", st.kind, err)
	}

	var cached map[int64][]float32
	if s.cache != nil {
		cached, err = s.cache.CachedVectors(ctx, st.kind, s.modelID)
		if err != nil {
			s.logger.Warn("vector cache read failed; re-synthesizing",
				zap.String("kind", string(st.kind)), zap.Error(err))
			cached = nil
		}
	}

	dims := s.synth.Dimensions()
	var missing []models.SkillSet
	for _, set := range sets {
		if vec, ok := cached[set.EntityID]; !ok || len(vec) != dims {
			missing = append(missing, set)
		}
	}
	synthesized, err := s.synth.SynthesizeAll(ctx, missing)
	if err != nil {
		return fmt.Errorf("synthesize %s: %w", st.kind, err)
	}
	fresh := make(map[int64][]float32, len(synthesized))
	for _, r := range synthesized {
		fresh[r.EntityID] = r.Vector
	}

	records := make([]vector.Record, 0, len(sets))
	for _, set := range sets {
		vec, ok := fresh[set.EntityID]
		if !ok {
			vec = cached[set.EntityID]
		}
		records = append(records, vector.Record{EntityID: set.EntityID, Vector: vec})
	}
	if err := st.store.Replace(records); err != nil {
		return err
	}
	st.loaded = true
	s.cacheVectors(ctx, st.kind, fresh)

	s.logger.Info("skill vectors loaded",
		zap.String("kind", string(st.kind)),
		zap.Int("entities", len(records)),
		zap.Int("synthesized", len(fresh)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// cacheVectors is best effort; a failed write only costs a re-synthesis later.
func (s *Service) cacheVectors(ctx context.Context, kind models.Kind, vectors map[int64][]float32) {
	if s.cache == nil || len(vectors) == 0 || s.modelID == "" {
		return
	}
	if err := s.cache.PutVectors(ctx, kind, s.modelID, vectors); err != nil {
		s.logger.Warn("vector cache write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
