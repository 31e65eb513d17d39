package cluster

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hyperjump/skillrank/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of an Index.
type State int

const (
	// StateEmpty means no snapshot has been built yet.
	StateEmpty State = iota
	// StateBuilt means the published snapshot matches the store.
	StateBuilt
	// StateStale means the store changed, or the index was invalidated, since the last build.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is an immutable clustering of one store generation.
type Snapshot struct {
	Records    []vector.Record
	Centroids  [][]float32
	Assignment []int   // record index → cluster id
	Members    [][]int // cluster id → record indexes, in record order
	Generation uint64
	BuiltAt    time.Time
	Iterations int
	Inertia    float64

	epoch uint64
}

// K returns the number of clusters.
func (s *Snapshot) K() int { return len(s.Centroids) }

// Size returns the number of clustered records.
func (s *Snapshot) Size() int { return len(s.Records) }

// ClusterSizes returns the member count of each cluster.
func (s *Snapshot) ClusterSizes() []int {
	sizes := make([]int, len(s.Members))
	for c, m := range s.Members {
		sizes[c] = len(m)
	}
	return sizes
}

// Partition is what a ranking request searches: either a Clustered snapshot
// or, when the corpus has fewer records than K, the whole TooSmall corpus.
type Partition interface {
	Size() int
	partition()
}

// Clustered wraps a built snapshot.
type Clustered struct {
	*Snapshot
}

// TooSmall carries the full corpus when it cannot be split into K clusters.
// It is a normal outcome, not an error; rankers fall back to a linear scan.
type TooSmall struct {
	Records []vector.Record
	K       int
}

// Size returns the corpus size.
func (t TooSmall) Size() int { return len(t.Records) }

func (Clustered) partition() {}
func (TooSmall) partition()  {}

// Index lazily clusters one store and caches the result until the store
// changes or Invalidate is called. Builds are single-flight; readers never
// block on a fresh snapshot.
type Index struct {
	name   string
	store  *vector.Store
	k      int
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	snap  atomic.Pointer[Snapshot]
	epoch atomic.Uint64
	group singleflight.Group
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets the build logger.
func WithLogger(logger *zap.Logger) IndexOption {
	return func(idx *Index) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithName labels the index in logs, usually with the entity kind.
func WithName(name string) IndexOption {
	return func(idx *Index) { idx.name = name }
}

// WithOptions sets the k-means options.
func WithOptions(opts Options) IndexOption {
	return func(idx *Index) { idx.opts = opts }
}

// NewIndex returns an empty index over store with k clusters.
func NewIndex(store *vector.Store, k int, opts ...IndexOption) *Index {
	idx := &Index{
		store:  store,
		k:      k,
		opts:   DefaultOptions(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// K returns the configured cluster count.
func (idx *Index) K() int { return idx.k }

// Get returns the current partition, building a new snapshot if the
// published one is missing or stale. A caller whose ctx ends stops waiting,
// but the shared build still completes for the others.
func (idx *Index) Get(ctx context.Context) (Partition, error) {
	if s := idx.snap.Load(); idx.fresh(s) {
		return Clustered{s}, nil
	}
	res, err := idx.shared(ctx)
	if err != nil {
		return nil, err
	}
	return res.part, nil
}

// Invalidate marks the published snapshot stale. The next Get rebuilds.
func (idx *Index) Invalidate() {
	idx.epoch.Add(1)
}

// Rebuild invalidates the index and builds a new snapshot right away. A build
// already in flight is waited for, not duplicated; if it started before the
// invalidation, another build follows it.
func (idx *Index) Rebuild(ctx context.Context) (Partition, error) {
	idx.Invalidate()
	want := idx.epoch.Load()
	for {
		res, err := idx.shared(ctx)
		if err != nil {
			return nil, err
		}
		if res.epoch >= want {
			return res.part, nil
		}
	}
}

type buildResult struct {
	part  Partition
	epoch uint64 // epoch the build read the store at
}

// shared joins the single in-flight build, starting one if there is none.
func (idx *Index) shared(ctx context.Context) (buildResult, error) {
	ch := idx.group.DoChan("build", func() (interface{}, error) {
		return idx.build(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return buildResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return buildResult{}, r.Err
		}
		return r.Val.(buildResult), nil
	}
}

// State reports whether a fresh snapshot is published.
func (idx *Index) State() State {
	s := idx.snap.Load()
	switch {
	case s == nil:
		return StateEmpty
	case idx.fresh(s):
		return StateBuilt
	default:
		return StateStale
	}
}

// Current returns the last published snapshot, fresh or not, or nil.
func (idx *Index) Current() *Snapshot {
	return idx.snap.Load()
}

func (idx *Index) fresh(s *Snapshot) bool {
	return s != nil && s.epoch == idx.epoch.Load() && s.Generation == idx.store.Generation()
}

func (idx *Index) build(ctx context.Context) (buildResult, error) {
	epoch := idx.epoch.Load()
	if s := idx.snap.Load(); idx.fresh(s) {
		return buildResult{Clustered{s}, s.epoch}, nil
	}
	records, gen := idx.store.Snapshot()
	if len(records) < idx.k {
		idx.logger.Debug("corpus smaller than cluster count; ranking linearly",
			zap.String("kind", idx.name),
			zap.Int("size", len(records)),
			zap.Int("k", idx.k))
		return buildResult{TooSmall{Records: records, K: idx.k}, epoch}, nil
	}

	start := idx.now()
	points := make([][]float32, len(records))
	for i, r := range records {
		points[i] = r.Vector
	}
	res, err := KMeans(ctx, points, idx.k, idx.opts)
	if err != nil {
		return buildResult{}, fmt.Errorf("%s: %w", idx.label(), err)
	}

	members := make([][]int, idx.k)
	for i, c := range res.Labels {
		members[c] = append(members[c], i)
	}
	snap := &Snapshot{
		Records:    records,
		Centroids:  res.Centroids,
		Assignment: res.Labels,
		Members:    members,
		Generation: gen,
		BuiltAt:    idx.now(),
		Iterations: res.Iterations,
		Inertia:    res.Inertia,
		epoch:      epoch,
	}
	idx.publish(snap)

	idx.logger.Info("clusters built",
		zap.String("kind", idx.name),
		zap.Int("size", len(records)),
		zap.Int("k", idx.k),
		zap.Int("iterations", res.Iterations),
		zap.Float64("inertia", res.Inertia),
		zap.Ints("cluster_sizes", snap.ClusterSizes()),
		zap.Duration("duration", snap.BuiltAt.Sub(start)))
	return buildResult{Clustered{snap}, epoch}, nil
}

func (idx *Index) label() string {
	if idx.name == "" {
		return "cluster"
	}
	return "cluster " + idx.name
}

// publish stores s unless a snapshot of newer data is already published.
func (idx *Index) publish(s *Snapshot) {
	for {
		cur := idx.snap.Load()
		if cur != nil && (cur.epoch > s.epoch || (cur.epoch == s.epoch && cur.Generation > s.Generation)) {
			return
		}
		if idx.snap.CompareAndSwap(cur, s) {
			return
		}
	}
}
