package rag

import "math"

// MetricCosine is the only distance metric the pipeline builds and queries
// indexes with. Index artifacts record it and loaders reject anything else.
const MetricCosine = "cosine"

// Normalize returns a unit-length copy of v. The second result is false for
// empty, zero-norm or non-finite vectors, which cannot be compared by cosine.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if len(v) == 0 || norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// CosineDistance returns 1 - cos(a, b) for unit-length vectors, clamped to
// [0, 2] against float rounding.
func CosineDistance(a, b []float32) float64 {
	d := 1 - Dot(a, b)
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
