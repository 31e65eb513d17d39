// Package ranking orders a kind's entities by skill similarity to a query vector.
package ranking

import (
	"sort"

	"github.com/hyperjump/skillrank/internal/cluster"
	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/vector"
)

// Rank scores candidates from p against query and returns them by descending
// cosine similarity. For a clustered partition only the members of the
// nearest cluster are scored; entities in other clusters are not returned
// even when they would score higher. A TooSmall partition is scanned in full.
// Equal scores keep snapshot order.
func Rank(query []float32, p cluster.Partition) []models.Recommendation {
	switch part := p.(type) {
	case cluster.Clustered:
		c, _ := NearestCentroid(query, part.Centroids)
		if c < 0 {
			return []models.Recommendation{}
		}
		members := part.Members[c]
		records := make([]vector.Record, len(members))
		for i, m := range members {
			records[i] = part.Records[m]
		}
		return score(query, records)
	case cluster.TooSmall:
		return score(query, part.Records)
	default:
		return []models.Recommendation{}
	}
}

// NearestCentroid returns the index of the centroid most cosine-similar to
// query and its similarity. The first centroid wins ties. It returns -1 when
// there are no centroids.
func NearestCentroid(query []float32, centroids [][]float32) (int, float64) {
	best, bestSim := -1, 0.0
	for i, c := range centroids {
		sim := vector.Cosine(query, c)
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best, bestSim
}

// Limit returns the first n recommendations. n <= 0 keeps all of them.
func Limit(recs []models.Recommendation, n int) []models.Recommendation {
	if n <= 0 || n >= len(recs) {
		return recs
	}
	return recs[:n]
}

func score(query []float32, records []vector.Record) []models.Recommendation {
	out := make([]models.Recommendation, len(records))
	for i, r := range records {
		out[i] = models.Recommendation{EntityID: r.EntityID, Score: vector.Cosine(query, r.Vector)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
