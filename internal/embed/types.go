// Package embed turns text into fixed-dimension vectors. It holds the
// provider-agnostic Embedder contract, the concrete providers (Ollama over
// HTTP, a deterministic static fallback), the persistent content-addressed
// cache every indexing run funnels requests through, and the narrower
// symbol-summarization contract.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize bounds how many texts one provider call carries.
	DefaultBatchSize = 32

	// MaxBatchSize caps a caller-supplied batch size.
	MaxBatchSize = 256

	// DefaultRequestTimeout bounds one provider HTTP call.
	DefaultRequestTimeout = 30 * time.Second
)

// Embedder is the provider contract: batches of strings in, batches of
// unit-length vectors of a fixed dimension out.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts; the result is dense and positional.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length this embedder produces.
	Dimensions() int

	// ModelName identifies the model, used in cache keys and index metadata.
	ModelName() string

	// Available reports whether the provider can serve requests now.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// normalizeVector scales v to unit length. A zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
