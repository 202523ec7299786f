package intent

import (
	"testing"

	"github.com/scrappyAI/toka/pkg/causal"
	"github.com/stretchr/testify/assert"
)

func TestNilStrategy_AlwaysNilUnclustered(t *testing.T) {
	var s NilStrategy
	id, isNew := s.AssignIntent([]float64{1, 2, 3})
	assert.Equal(t, causal.NilIntentId, id)
	assert.False(t, isNew)
	assert.Equal(t, 0, s.ClusterCount())
}

func TestCosineStrategy_SimilarEmbeddingsShareCluster(t *testing.T) {
	s := NewCosineStrategy()

	id1, isNew1 := s.AssignIntent([]float64{1, 0, 0})
	assert.True(t, isNew1)

	id2, isNew2 := s.AssignIntent([]float64{0.99, 0.01, 0})
	assert.False(t, isNew2)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.ClusterCount())
}

func TestCosineStrategy_DissimilarEmbeddingsNewCluster(t *testing.T) {
	s := NewCosineStrategy()

	s.AssignIntent([]float64{1, 0, 0})
	_, isNew := s.AssignIntent([]float64{0, 1, 0})

	assert.True(t, isNew)
	assert.Equal(t, 2, s.ClusterCount())
}

func TestCosineStrategy_ThresholdIsConfigurable(t *testing.T) {
	s := NewCosineStrategyWithThreshold(0.99999)

	s.AssignIntent([]float64{1, 0, 0})
	_, isNew := s.AssignIntent([]float64{0.99, 0.01, 0})

	assert.True(t, isNew, "a stricter threshold should reject a near match")
}
