package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns three tight groups of points around distinct corners.
func blobs() [][]float32 {
	return [][]float32{
		{10, 0, 0}, {10.1, 0.2, 0}, {9.9, -0.1, 0.1}, {10.2, 0, -0.2},
		{0, 10, 0}, {0.1, 9.8, 0}, {-0.2, 10.1, 0.1}, {0, 10.2, 0.2},
		{0, 0, 10}, {0.2, 0, 9.9}, {0, -0.1, 10.1}, {-0.1, 0.1, 10},
	}
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	res, err := KMeans(context.Background(), blobs(), 3, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Centroids, 3)
	require.Len(t, res.Labels, 12)

	for g := 0; g < 3; g++ {
		first := res.Labels[g*4]
		for i := 1; i < 4; i++ {
			assert.Equal(t, first, res.Labels[g*4+i], "group %d split across clusters", g)
		}
	}
	assert.NotEqual(t, res.Labels[0], res.Labels[4])
	assert.NotEqual(t, res.Labels[4], res.Labels[8])
	assert.NotEqual(t, res.Labels[0], res.Labels[8])
	assert.Less(t, res.Inertia, 1.0)
	assert.GreaterOrEqual(t, res.Iterations, 1)
}

func TestKMeans_Deterministic(t *testing.T) {
	opts := Options{Seed: 42}
	a, err := KMeans(context.Background(), blobs(), 4, opts)
	require.NoError(t, err)
	b, err := KMeans(context.Background(), blobs(), 4, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestKMeans_LabelsMatchNearestCentroid(t *testing.T) {
	pts := blobs()
	res, err := KMeans(context.Background(), pts, 5, Options{Seed: 7, MaxIterations: 1})
	require.NoError(t, err)
	for i, p := range pts {
		best, bestD := 0, sq32(p, res.Centroids[0])
		for c := 1; c < len(res.Centroids); c++ {
			if d := sq32(p, res.Centroids[c]); d < bestD {
				best, bestD = c, d
			}
		}
		assert.Equal(t, best, res.Labels[i], "point %d", i)
	}
}

func TestKMeans_MoreInitsNeverWorse(t *testing.T) {
	single, err := KMeans(context.Background(), blobs(), 4, Options{Seed: 3, NInit: 1})
	require.NoError(t, err)
	multi, err := KMeans(context.Background(), blobs(), 4, Options{Seed: 3, NInit: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, multi.Inertia, single.Inertia)
}

func TestKMeans_DuplicatePoints(t *testing.T) {
	pts := [][]float32{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	res, err := KMeans(context.Background(), pts, 3, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Centroids, 3)
	for _, l := range res.Labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}
	assert.Equal(t, 0.0, res.Inertia)
}

func TestKMeans_ZeroVectors(t *testing.T) {
	pts := [][]float32{{0, 0}, {0, 0}, {1, 0}, {0, 1}}
	res, err := KMeans(context.Background(), pts, 2, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Labels, 4)
}

func TestKMeans_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := KMeans(ctx, blobs()[:2], 3, DefaultOptions())
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = KMeans(ctx, blobs(), 0, DefaultOptions())
	assert.Error(t, err)

	_, err = KMeans(ctx, [][]float32{{1, 2}, {1}}, 1, DefaultOptions())
	assert.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = KMeans(canceled, blobs(), 2, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func sq32(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}
