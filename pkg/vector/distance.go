package vector

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity between two vectors. It
// returns an error if the vectors have different lengths or if either vector
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine similarity on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("cosine similarity with zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// Mean returns the element-wise mean of vecs. All vectors must share a
// dimension.
func Mean(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("mean of zero vectors")
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	n := float64(len(vecs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}
