package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// Static embedder dimensions.
const (
	StaticDimensions    = 256
	Static768Dimensions = 768
)

// StaticEmbedder produces deterministic vectors from token hashes, with no
// model or network behind it. Texts sharing tokens land near each other,
// which is enough signal for offline use and for tests that need stable,
// repeatable vectors.
type StaticEmbedder struct {
	dims  int
	model string
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns the 256-dimension static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{dims: StaticDimensions, model: "static-256"}
}

// NewStaticEmbedder768 returns a 768-dimension variant, matching the
// default neural model's dimension so it can stand in for it.
func NewStaticEmbedder768() *StaticEmbedder {
	return &StaticEmbedder{dims: Static768Dimensions, model: "static-768"}
}

// Embed hashes each token and scatters weighted contributions over the
// vector, then normalizes.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		// four positions per token, signed by alternate bits
		for k := 0; k < 4; k++ {
			idx := int(binary.LittleEndian.Uint32(sum[k*8:])) % e.dims
			if idx < 0 {
				idx += e.dims
			}
			weight := float32(1)
			if sum[k*8+4]&1 == 1 {
				weight = -1
			}
			vec[idx] += weight
		}
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName returns the static model tag.
func (e *StaticEmbedder) ModelName() string { return e.model }

// Available is always true; there is nothing to reach.
func (e *StaticEmbedder) Available(context.Context) bool { return true }

// Close is a no-op.
func (e *StaticEmbedder) Close() error { return nil }
