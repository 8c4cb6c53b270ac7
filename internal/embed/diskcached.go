package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DiskCachedEmbedder funnels every embedding request through the persistent
// DiskCache, with a small in-memory LRU in front for hot repeats. Lookups
// happen per text; misses are collected and submitted to the inner embedder
// in batches, then written back to the disk cache in one transaction.
//
// The DiskCache is borrowed, not owned: Close releases the inner embedder
// but leaves the cache open, since cache lifetime is independent of any
// one indexing run.
type DiskCachedEmbedder struct {
	inner     Embedder
	disk      *DiskCache
	hot       *lru.Cache[string, []float32]
	batchSize int
}

// hotCacheSize bounds the in-memory front: ~3MB at 768 dims.
const hotCacheSize = 1000

// NewDiskCachedEmbedder wraps inner with the given persistent cache.
// batchSize bounds how many cache misses are sent to the provider per
// request; zero selects DefaultBatchSize.
func NewDiskCachedEmbedder(inner Embedder, disk *DiskCache, batchSize int) *DiskCachedEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	hot, _ := lru.New[string, []float32](hotCacheSize)
	return &DiskCachedEmbedder{
		inner:     inner,
		disk:      disk,
		hot:       hot,
		batchSize: batchSize,
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text if present, otherwise computes
// it via the inner embedder and stores it.
func (d *DiskCachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := contentHash(text)
	if vec, ok := d.hot.Get(h); ok {
		return vec, nil
	}
	if vec, ok := d.disk.Get(d.inner.ModelName(), h); ok {
		d.hot.Add(h, vec)
		return vec, nil
	}

	vec, err := d.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	d.hot.Add(h, vec)
	if err := d.disk.Put(d.inner.ModelName(), h, vec); err != nil {
		return nil, fmt.Errorf("write embedding cache: %w", err)
	}
	return vec, nil
}

// EmbedBatch resolves each text through the cache and submits only the
// misses to the inner embedder, in batches of at most batchSize. The
// returned slice is dense: position i always holds text i's vector.
func (d *DiskCachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	model := d.inner.ModelName()

	var missTexts []string
	var missHashes []string
	var missIdx []int
	for i, text := range texts {
		h := contentHash(text)
		if vec, ok := d.hot.Get(h); ok {
			results[i] = vec
			continue
		}
		if vec, ok := d.disk.Get(model, h); ok {
			d.hot.Add(h, vec)
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missHashes = append(missHashes, h)
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missTexts); start += d.batchSize {
		end := start + d.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}

		vecs, err := d.inner.EmbedBatch(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
		}

		if err := d.disk.PutBatch(model, missHashes[start:end], vecs); err != nil {
			return nil, fmt.Errorf("write embedding cache: %w", err)
		}
		for j, vec := range vecs {
			d.hot.Add(missHashes[start+j], vec)
			results[missIdx[start+j]] = vec
		}
	}

	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (d *DiskCachedEmbedder) Dimensions() int {
	return d.inner.Dimensions()
}

// ModelName returns the inner embedder's model identifier.
func (d *DiskCachedEmbedder) ModelName() string {
	return d.inner.ModelName()
}

// Available delegates to the inner embedder.
func (d *DiskCachedEmbedder) Available(ctx context.Context) bool {
	return d.inner.Available(ctx)
}

// Close releases the inner embedder. The disk cache stays open.
func (d *DiskCachedEmbedder) Close() error {
	return d.inner.Close()
}

var _ Embedder = (*DiskCachedEmbedder)(nil)
