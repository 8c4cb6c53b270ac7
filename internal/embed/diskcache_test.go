package embed

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder counts provider calls so cache tests can assert what
// reached the backend.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	dims       int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) vector() []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vector(), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector()
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                { return m.dims }
func (m *mockEmbedder) ModelName() string              { return "mock-model" }
func (m *mockEmbedder) Available(context.Context) bool { return true }
func (m *mockEmbedder) Close() error                   { return nil }

func openTestCache(t *testing.T) *DiskCache {
	t.Helper()
	cache, err := OpenDiskCache(filepath.Join(t.TempDir(), "cache", "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestDiskCache_PutGet_RoundTrip(t *testing.T) {
	cache := openTestCache(t)

	vec := []float32{0.1, -0.5, 3.25, 0}
	require.NoError(t, cache.Put("mock-model", contentHash("hello"), vec))

	got, ok := cache.Get("mock-model", contentHash("hello"))
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestDiskCache_Get_MissingKey(t *testing.T) {
	cache := openTestCache(t)

	_, ok := cache.Get("mock-model", contentHash("never stored"))
	assert.False(t, ok)
}

func TestDiskCache_KeysScopedByModel(t *testing.T) {
	cache := openTestCache(t)

	h := contentHash("shared text")
	require.NoError(t, cache.Put("model-a", h, []float32{1}))

	_, ok := cache.Get("model-b", h)
	assert.False(t, ok, "entry for model-a must not satisfy model-b")
}

func TestDiskCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")

	cache, err := OpenDiskCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("m", contentHash("text"), []float32{1, 2}))
	require.NoError(t, cache.Close())

	reopened, err := OpenDiskCache(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get("m", contentHash("text"))
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestDiskCache_StatsAndClear(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.Put("m", contentHash("a"), []float32{1}))
	require.NoError(t, cache.Put("m", contentHash("b"), []float32{2}))

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.SizeBytes)

	require.NoError(t, cache.Clear())

	stats, err = cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestDiskCache_PutBatch_LengthMismatch(t *testing.T) {
	cache := openTestCache(t)

	err := cache.PutBatch("m", []string{contentHash("a")}, [][]float32{{1}, {2}})
	assert.Error(t, err)
}

func TestDiskCachedEmbedder_HitSkipsProvider(t *testing.T) {
	cache := openTestCache(t)
	inner := newMockEmbedder(4)
	emb := NewDiskCachedEmbedder(inner, cache, 0)

	_, err := emb.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	_, err = emb.Embed(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestDiskCachedEmbedder_HitSurvivesNewWrapper(t *testing.T) {
	cache := openTestCache(t)

	first := newMockEmbedder(4)
	emb := NewDiskCachedEmbedder(first, cache, 0)
	_, err := emb.Embed(context.Background(), "warm")
	require.NoError(t, err)

	// A fresh wrapper over the same cache file must not re-embed.
	second := newMockEmbedder(4)
	emb2 := NewDiskCachedEmbedder(second, cache, 0)
	_, err = emb2.Embed(context.Background(), "warm")
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.embedCalls.Load())
}

func TestDiskCachedEmbedder_EmbedBatch_OnlyMissesDispatched(t *testing.T) {
	cache := openTestCache(t)
	inner := newMockEmbedder(4)
	emb := NewDiskCachedEmbedder(inner, cache, 0)

	_, err := emb.Embed(context.Background(), "cached")
	require.NoError(t, err)

	results, err := emb.EmbedBatch(context.Background(), []string{"cached", "fresh one", "fresh two"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, vec := range results {
		assert.NotNil(t, vec, "result %d must be populated", i)
	}

	// One batch call for the two misses; the hit never reaches the provider.
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestDiskCachedEmbedder_EmbedBatch_RespectsBatchSize(t *testing.T) {
	cache := openTestCache(t)
	inner := newMockEmbedder(4)
	emb := NewDiskCachedEmbedder(inner, cache, 2)

	_, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	// Five misses at batch size 2 means three provider calls.
	assert.Equal(t, int64(3), inner.batchCalls.Load())
}
