package vector

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors need not
// be normalized. A zero vector, or a length mismatch, yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push identical vectors just past 1.
	return math.Max(-1, math.Min(1, c))
}

// Mean returns the element-wise mean of vecs as a new vector of length dims.
// An empty input yields the zero vector.
func Mean(vecs [][]float32, dims int) []float32 {
	out := make([]float32, dims)
	if len(vecs) == 0 {
		return out
	}
	sum := make([]float64, dims)
	for _, v := range vecs {
		for i := 0; i < dims && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	n := float64(len(vecs))
	for i := range sum {
		out[i] = float32(sum[i] / n)
	}
	return out
}
