// Package cluster partitions a kind's skill vectors with k-means and keeps the
// latest partition available to readers.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ErrTooFewPoints is returned by KMeans when there are fewer points than clusters.
var ErrTooFewPoints = errors.New("fewer points than clusters")

// Options tune a k-means run. The zero value is valid; unset fields take the
// defaults from DefaultOptions.
type Options struct {
	// Seed drives center initialization. The same seed and input always
	// produce the same clustering.
	Seed uint64
	// MaxIterations caps the Lloyd iterations of a single run.
	MaxIterations int
	// Tolerance is relative to the mean per-dimension variance of the input.
	// A run stops once the summed squared centroid shift drops to it.
	Tolerance float64
	// NInit is the number of seeded restarts; the lowest inertia wins.
	NInit int
}

// DefaultOptions returns seed 0, 300 iterations, tolerance 1e-4 and a single init.
func DefaultOptions() Options {
	return Options{Seed: 0, MaxIterations: 300, Tolerance: 1e-4, NInit: 1}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance < 0 {
		o.Tolerance = d.Tolerance
	}
	if o.NInit <= 0 {
		o.NInit = d.NInit
	}
	return o
}

// Result is the outcome of KMeans. Labels[i] is the cluster of points[i] and
// always refers to the nearest of the returned centroids.
type Result struct {
	Centroids  [][]float32
	Labels     []int
	Inertia    float64
	Iterations int
}

// KMeans clusters points into k groups. Centers are seeded with greedy
// k-means++ and refined with Lloyd iterations. Distance ties go to the lower
// cluster index. ctx is checked between iterations.
func KMeans(ctx context.Context, points [][]float32, k int, opts Options) (*Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	n := len(points)
	if n < k {
		return nil, fmt.Errorf("%w: %d points, k=%d", ErrTooFewPoints, n, k)
	}
	dims := len(points[0])
	x := make([][]float64, n)
	for i, p := range points {
		if len(p) != dims {
			return nil, fmt.Errorf("point %d has dimension %d, expected %d", i, len(p), dims)
		}
		row := make([]float64, dims)
		for j, v := range p {
			row[j] = float64(v)
		}
		x[i] = row
	}

	opts = opts.withDefaults()
	tol := opts.Tolerance * meanVariance(x)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	var best *run
	for i := 0; i < opts.NInit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centers := initPlusPlus(x, k, rng)
		r, err := lloyd(ctx, x, centers, opts.MaxIterations, tol)
		if err != nil {
			return nil, err
		}
		if best == nil || r.inertia < best.inertia {
			best = r
		}
	}

	centroids := make([][]float32, k)
	for c, center := range best.centers {
		out := make([]float32, dims)
		for j, v := range center {
			out[j] = float32(v)
		}
		centroids[c] = out
	}
	return &Result{
		Centroids:  centroids,
		Labels:     best.labels,
		Inertia:    best.inertia,
		Iterations: best.iterations,
	}, nil
}

type run struct {
	centers    [][]float64
	labels     []int
	inertia    float64
	iterations int
}

// initPlusPlus picks k initial centers. Each new center is the best of
// 2+ln(k) candidates sampled proportionally to squared distance, judged by the
// total potential it leaves behind.
func initPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	trials := 2 + int(math.Log(float64(k)))
	centers := make([][]float64, 0, k)

	first := rng.IntN(n)
	centers = append(centers, clone(x[first]))
	closest := make([]float64, n)
	pot := 0.0
	for i := range x {
		closest[i] = sqDist(x[i], x[first])
		pot += closest[i]
	}

	cum := make([]float64, n)
	candDist := make([]float64, n)
	bestDist := make([]float64, n)
	for len(centers) < k {
		acc := 0.0
		for i, d := range closest {
			acc += d
			cum[i] = acc
		}
		bestCand, bestPot := -1, math.Inf(1)
		for t := 0; t < trials; t++ {
			r := rng.Float64() * pot
			cand := sort.SearchFloat64s(cum, r)
			if cand >= n {
				cand = n - 1
			}
			candPot := 0.0
			for i := range x {
				candDist[i] = math.Min(closest[i], sqDist(x[i], x[cand]))
				candPot += candDist[i]
			}
			if candPot < bestPot {
				bestCand, bestPot = cand, candPot
				copy(bestDist, candDist)
			}
		}
		centers = append(centers, clone(x[bestCand]))
		copy(closest, bestDist)
		pot = bestPot
	}
	return centers
}

// lloyd refines centers until the labels stop changing, the centroid shift
// falls within tol, or maxIter is reached. The returned labels come from a
// final assignment against the returned centers.
func lloyd(ctx context.Context, x [][]float64, centers [][]float64, maxIter int, tol float64) (*run, error) {
	n, k := len(x), len(centers)
	dims := len(x[0])
	labels := make([]int, n)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}
	dist := make([]float64, n)
	iterations := 0

	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = it + 1
		assign(x, centers, labels, dist)

		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		counts := make([]int, k)
		for i, c := range labels {
			counts[c]++
			for j, v := range x[i] {
				sums[c][j] += v
			}
		}
		relocateEmpty(x, labels, dist, sums, counts)

		shift := 0.0
		next := make([][]float64, k)
		for c := range next {
			if counts[c] == 0 {
				next[c] = centers[c]
				continue
			}
			center := make([]float64, dims)
			for j := range center {
				center[j] = sums[c][j] / float64(counts[c])
			}
			shift += sqDist(center, centers[c])
			next[c] = center
		}
		centers = next

		if equalLabels(labels, prev) {
			break
		}
		if shift <= tol {
			break
		}
		copy(prev, labels)
	}

	inertia := assign(x, centers, labels, dist)
	return &run{centers: centers, labels: labels, inertia: inertia, iterations: iterations}, nil
}

// relocateEmpty moves each empty cluster onto one of the points farthest from
// its current center, taking that point out of its old cluster's sums.
func relocateEmpty(x [][]float64, labels []int, dist []float64, sums [][]float64, counts []int) {
	var empty []int
	for c, n := range counts {
		if n == 0 {
			empty = append(empty, c)
		}
	}
	if len(empty) == 0 {
		return
	}
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] > dist[order[b]] })

	for i, c := range empty {
		if i >= len(order) {
			break
		}
		p := order[i]
		old := labels[p]
		if counts[old] > 1 {
			counts[old]--
			for j, v := range x[p] {
				sums[old][j] -= v
			}
		}
		copy(sums[c], x[p])
		counts[c] = 1
	}
}

// assign labels every point with its nearest center and returns the inertia.
func assign(x [][]float64, centers [][]float64, labels []int, dist []float64) float64 {
	inertia := 0.0
	for i, p := range x {
		best, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
		dist[i] = bestD
		inertia += bestD
	}
	return inertia
}

func meanVariance(x [][]float64) float64 {
	n, dims := len(x), len(x[0])
	if n == 0 || dims == 0 {
		return 0
	}
	total := 0.0
	for j := 0; j < dims; j++ {
		mean := 0.0
		for i := range x {
			mean += x[i][j]
		}
		mean /= float64(n)
		v := 0.0
		for i := range x {
			d := x[i][j] - mean
			v += d * d
		}
		total += v / float64(n)
	}
	return total / float64(dims)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func equalLabels(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
