// Package rerank implements the Maximal Marginal Relevance post-processor
// over an initial similarity-ordered candidate list, trading a little
// relevance for diversity among the top results. A NoOp implementation is
// provided for callers that want raw similarity order.
package rerank

import (
	"context"
	"fmt"
	"math"
)

// Candidate is one entry of the initial, distance-ordered candidate list
// the vector store returns (distance is cosine distance,
// smaller is better).
type Candidate struct {
	ID       string
	Vector   []float32
	Distance float32
}

// Reranker reorders an initial similarity-ordered candidate list.
type Reranker interface {
	Rerank(ctx context.Context, query []float32, candidates []Candidate, lambda float64) ([]Candidate, error)
}

// NoOpReranker returns the input list unchanged; used when the caller
// wants raw vector-similarity order with no diversity pass.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ []float32, candidates []Candidate, _ float64) ([]Candidate, error) {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	return out, nil
}

// MMR reranks greedily: place the top-1 candidate, then
// greedily pick, from what remains, the candidate maximizing
// λ·(1 − distance_to_query) − (1 − λ)·max_selected cosine_similarity(candidate, selected).
type MMR struct{}

// NewMMR returns an MMR reranker.
func NewMMR() *MMR {
	return &MMR{}
}

// Rerank reorders candidates by MMR. The query vector is accepted for
// interface symmetry with the caller's query embedding; each
// candidate's own Distance field already encodes its distance to that
// query; diversity is computed from candidate vectors alone.
func (m *MMR) Rerank(_ context.Context, _ []float32, candidates []Candidate, lambda float64) ([]Candidate, error) {
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("rerank: diversity parameter lambda must be in [0,1], got %v", lambda)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	remaining := make([]Candidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]Candidate, 0, len(candidates))
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i, cand := range remaining {
			relevance := 1 - float64(cand.Distance)

			maxSim := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(cand.Vector, sel.Vector); sim > maxSim {
					maxSim = sim
				}
			}

			score := lambda*relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}

// cosineSimilarity returns 0 for mismatched lengths or zero-norm vectors
// rather than NaN, so a malformed embedding never poisons the max term.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
