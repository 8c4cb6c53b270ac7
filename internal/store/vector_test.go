package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dims int) *VectorIndex {
	t.Helper()
	v, err := NewVectorIndex(DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func axis(dims, i int) []float32 {
	v := make([]float32, dims)
	v[i] = 1
	return v
}

func TestVectorIndexSearchOrdersByDistance(t *testing.T) {
	v := newTestIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, v.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{axis(4, 0), axis(4, 1), {0.9, 0.1, 0, 0}},
	))

	hits, err := v.Search(ctx, axis(4, 0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "x", hits[0].ID)
	assert.Equal(t, "z", hits[1].ID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
	assert.InDelta(t, 1.0, float64(hits[0].Score)+float64(hits[0].Distance), 1e-5, "score is 1 - distance")
}

func TestVectorIndexDimensionChecked(t *testing.T) {
	v := newTestIndex(t, 4)
	ctx := context.Background()

	err := v.Add(ctx, []string{"bad"}, [][]float32{{1, 2}})
	assert.Error(t, err)

	_, err = v.Search(ctx, []float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestVectorIndexReplaceByID(t *testing.T) {
	v := newTestIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, v.Add(ctx, []string{"c"}, [][]float32{axis(4, 0)}))
	require.NoError(t, v.Add(ctx, []string{"c"}, [][]float32{axis(4, 1)}))
	assert.Equal(t, 1, v.Count())

	hits, err := v.Search(ctx, axis(4, 1), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ID)
	assert.InDelta(t, 0, float64(hits[0].Distance), 1e-5, "the replaced vector must answer")
}

func TestVectorIndexLazyDelete(t *testing.T) {
	v := newTestIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, v.Add(ctx, []string{"keep", "drop"}, [][]float32{axis(4, 0), axis(4, 1)}))
	require.NoError(t, v.Delete(ctx, []string{"drop"}))

	assert.Equal(t, 1, v.Count())
	assert.False(t, v.Contains("drop"))
	assert.True(t, v.Contains("keep"))

	hits, err := v.Search(ctx, axis(4, 1), 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "drop", h.ID, "deleted ids never surface in search")
	}
}

func TestVectorIndexSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	v := newTestIndex(t, 4)
	require.NoError(t, v.Add(ctx, []string{"a", "b"}, [][]float32{axis(4, 0), axis(4, 1)}))
	require.NoError(t, v.Delete(ctx, []string{"b"}))
	require.NoError(t, v.Save(path))

	dims, err := ReadVectorIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)

	loaded := newTestIndex(t, 4)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 1, loaded.Count())
	assert.True(t, loaded.Contains("a"))
	assert.False(t, loaded.Contains("b"), "lazy deletions survive a save/load cycle")

	hits, err := loaded.Search(ctx, axis(4, 0), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestVectorIndexLoadRejectsWrongDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	v := newTestIndex(t, 4)
	require.NoError(t, v.Add(ctx, []string{"a"}, [][]float32{axis(4, 0)}))
	require.NoError(t, v.Save(path))

	other := newTestIndex(t, 8)
	assert.Error(t, other.Load(path))
}

func TestVectorIndexEmptySearch(t *testing.T) {
	v := newTestIndex(t, 4)
	hits, err := v.Search(context.Background(), axis(4, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
