package vector

import "github.com/viterin/vek/vek32"

// magnitude returns the L2 norm of v.
func magnitude(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(vek32.Norm(v))
}

// cosineSimilarity uses precomputed magnitudes and is zero when either is zero.
func cosineSimilarity(a, b []float32, magA, magB float64) float64 {
	if magA == 0 || magB == 0 || len(a) != len(b) {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (magA * magB)
}

func cosineDistance(a, b []float32, magA, magB float64) float64 {
	return 1 - cosineSimilarity(a, b, magA, magB)
}
