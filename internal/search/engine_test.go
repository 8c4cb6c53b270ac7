package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/store"
)

// newTestEngine indexes a few chunks through real stores with the static
// embedder, so Search exercises the actual embed → ANN → rerank path.
func newTestEngine(t *testing.T) (*Engine, store.MetadataStore) {
	t.Helper()

	metadata, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { metadata.Close() })

	embedder := embed.NewStaticEmbedder768()
	vector, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	ctx := context.Background()
	require.NoError(t, metadata.SaveProject(ctx, &store.Project{ID: "p1", Name: "t", RootPath: "/r"}))
	require.NoError(t, metadata.SaveFiles(ctx, []*store.File{
		{ID: "f1", ProjectID: "p1", Path: "auth/login.go"},
		{ID: "f2", ProjectID: "p1", Path: "docs/guide.md"},
	}))

	chunks := []*store.Chunk{
		{ID: "c1", FileID: "f1", FilePath: "auth/login.go", Content: "func validateUser(name string) bool", ContentType: store.ContentTypeCode, Language: "go"},
		{ID: "c2", FileID: "f1", FilePath: "auth/login.go", Content: "func handleLogin(w http.ResponseWriter)", ContentType: store.ContentTypeCode, Language: "go"},
		{ID: "c3", FileID: "f2", FilePath: "docs/guide.md", Content: "how to validate a user account", ContentType: store.ContentTypeMarkdown, Language: "markdown"},
	}
	require.NoError(t, metadata.SaveChunks(ctx, chunks))

	for _, c := range chunks {
		vec, err := embedder.Embed(ctx, c.Content)
		require.NoError(t, err)
		require.NoError(t, vector.Add(ctx, []string{c.ID}, [][]float32{vec}))
	}

	engine, err := NewEngine(vector, embedder, metadata, DefaultConfig())
	require.NoError(t, err)
	return engine, metadata
}

func TestEngineSearchFindsRelevantChunk(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.Search(context.Background(), "validate user", SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Chunk.ID)
		assert.InDelta(t, 1-float64(r.Distance), r.Score, 1e-6)
	}
	assert.Contains(t, ids, "c1")
}

func TestEngineSearchContentFilter(t *testing.T) {
	engine, _ := newTestEngine(t)

	docs, err := engine.Search(context.Background(), "validate user", SearchOptions{Limit: 5, Filter: "docs"})
	require.NoError(t, err)
	for _, r := range docs {
		assert.Equal(t, store.ContentTypeMarkdown, r.Chunk.ContentType)
	}

	code, err := engine.Search(context.Background(), "validate user", SearchOptions{Limit: 5, Filter: "code"})
	require.NoError(t, err)
	for _, r := range code {
		assert.Equal(t, store.ContentTypeCode, r.Chunk.ContentType)
	}
}

func TestEngineSearchScopeFilter(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.Search(context.Background(), "validate user", SearchOptions{Limit: 5, Scopes: []string{"docs"}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "docs/guide.md", r.Chunk.FilePath)
	}
}

func TestEngineSearchRejectsBadInput(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), "   ", SearchOptions{})
	assert.Error(t, err)

	bad := 1.5
	_, err = engine.Search(context.Background(), "x", SearchOptions{Diversity: &bad})
	assert.Error(t, err)
}

func TestEngineSearchExplicitZeroDiversity(t *testing.T) {
	engine, _ := newTestEngine(t)

	zero := 0.0
	results, err := engine.Search(context.Background(), "validate user", SearchOptions{Limit: 3, Diversity: &zero})
	require.NoError(t, err)
	assert.NotEmpty(t, results, "an explicit lambda of 0 is a valid query")
}

func TestEngineSearchLimitApplied(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.Search(context.Background(), "user login validation guide", SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 1)
}

func TestEngineStats(t *testing.T) {
	engine, _ := newTestEngine(t)
	stats := engine.Stats()
	assert.Equal(t, 3, stats.VectorCount)
	assert.Equal(t, "static-768", stats.Model)
}
