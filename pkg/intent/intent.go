// Package intent implements the pluggable event-clustering strategy: an
// online assignment of an embedding vector to an IntentId, used to tag
// EventHeaders with a semantic cluster as they are committed.
//
// Strategy is the seam, NilStrategy is the zero-cost default, and
// CosineStrategy is the optional online-clustering implementation.
package intent

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/scrappyAI/toka/pkg/causal"
)

// Strategy assigns an IntentId to an embedding, reporting whether the
// assignment created a new cluster.
type Strategy interface {
	AssignIntent(embedding []float64) (id causal.IntentId, isNew bool)
	ClusterCount() int
}

// NilStrategy always returns the nil IntentId and never reports a new
// cluster. It is the default so that compiling out the embedding
// dependency entirely is possible without changing call sites.
type NilStrategy struct{}

func (NilStrategy) AssignIntent(_ []float64) (causal.IntentId, bool) {
	return causal.NilIntentId, false
}

func (NilStrategy) ClusterCount() int { return 0 }

// DefaultThreshold is the cosine-similarity threshold above which an
// embedding joins an existing centroid rather than starting a new one.
const DefaultThreshold = 0.82

type centroid struct {
	vec   []float64
	count int
	id    causal.IntentId
}

// CosineStrategy maintains a small set of centroids and assigns each
// incoming embedding to the nearest one above threshold, updating that
// centroid as an online mean; embeddings below threshold start a new
// cluster. A single writer lock is acceptable at expected event rates.
type CosineStrategy struct {
	mu        sync.Mutex
	threshold float64
	centroids []*centroid
}

// NewCosineStrategy creates a CosineStrategy using DefaultThreshold.
func NewCosineStrategy() *CosineStrategy {
	return NewCosineStrategyWithThreshold(DefaultThreshold)
}

// NewCosineStrategyWithThreshold creates a CosineStrategy using threshold
// instead of DefaultThreshold.
func NewCosineStrategyWithThreshold(threshold float64) *CosineStrategy {
	return &CosineStrategy{threshold: threshold}
}

func (s *CosineStrategy) AssignIntent(embedding []float64) (causal.IntentId, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *centroid
	bestSim := -1.0
	for _, c := range s.centroids {
		sim := cosineSimilarity(c.vec, embedding)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}

	if best != nil && bestSim > s.threshold {
		updateOnlineMean(best, embedding)
		best.count++
		return best.id, false
	}

	c := &centroid{
		vec:   append([]float64(nil), embedding...),
		count: 1,
		id:    causal.IntentId(uuid.New()),
	}
	s.centroids = append(s.centroids, c)
	return c.id, true
}

func (s *CosineStrategy) ClusterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.centroids)
}

func updateOnlineMean(c *centroid, embedding []float64) {
	n := float64(c.count)
	for i := range c.vec {
		c.vec[i] = (c.vec[i]*n + embedding[i]) / (n + 1)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
