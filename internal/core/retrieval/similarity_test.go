package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.6, CosineSimilarity([]float32{1, 0}, []float32{0.6, 0.8}), 1e-6)
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.5, 0.7}
	b := []float32{3, 5, 7}
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-6)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1, 1}, []float32{0, 0}))
}
