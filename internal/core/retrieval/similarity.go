package retrieval

import "math"

// CosineSimilarity is the single canonical similarity definition for the
// service: dot(a,b) / (|a| * |b|), accumulated in float64. Both ingestion
// and query paths score with this function, so ranks are numerically
// consistent everywhere. Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
