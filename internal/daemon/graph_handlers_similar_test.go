package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/store"
)

// similarTestProject wires up a projectState backed by real, temp-dir stores
// so HandleSimilar exercises an actual embed-then-vector-search round trip
// instead of a lexical name match.
func similarTestProject(t *testing.T) *projectState {
	t.Helper()
	dir := t.TempDir()

	metadata, err := store.NewSQLiteStore(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	vector, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(768))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	graphStore, err := store.NewSQLiteGraphStore(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = graphStore.Close() })

	ctx := context.Background()
	project := &store.Project{ID: "p1", Name: "test", RootPath: dir, IndexedAt: time.Now()}
	require.NoError(t, metadata.SaveProject(ctx, project))

	file := &store.File{ID: "f1", ProjectID: "p1", Path: "retry.go", Language: "go"}
	require.NoError(t, metadata.SaveFiles(ctx, []*store.File{file}))

	chunks := []*store.Chunk{
		{
			ID:       "c1",
			FileID:   "f1",
			FilePath: "retry.go",
			Content:  "func Retry(ctx context.Context, fn func() error) error { return fn() }",
			Language: "go",
			Symbols: []*store.Symbol{
				{Name: "Retry", Type: store.SymbolTypeFunction, StartLine: 1, EndLine: 1, Signature: "func Retry(ctx context.Context, fn func() error) error"},
			},
		},
		{
			ID:       "c2",
			FileID:   "f1",
			FilePath: "retry.go",
			Content:  "func RetryWithBackoff(ctx context.Context, fn func() error) error { return fn() }",
			Language: "go",
			Symbols: []*store.Symbol{
				{Name: "RetryWithBackoff", Type: store.SymbolTypeFunction, StartLine: 3, EndLine: 3, Signature: "func RetryWithBackoff(ctx context.Context, fn func() error) error"},
			},
		},
	}
	require.NoError(t, metadata.SaveChunks(ctx, chunks))

	embedder := embed.NewStaticEmbedder768()
	for _, c := range chunks {
		vec, err := embedder.Embed(ctx, c.Content)
		require.NoError(t, err)
		require.NoError(t, vector.Add(ctx, []string{c.ID}, [][]float32{vec}))
	}

	require.NoError(t, graphStore.AddSymbols(ctx, []*graph.Symbol{
		{ID: "s1", Name: "Retry", Kind: graph.KindFunction, RelativePath: "retry.go", StartLine: 1, IsExported: true, Signature: chunks[0].Symbols[0].Signature},
		{ID: "s2", Name: "RetryWithBackoff", Kind: graph.KindFunction, RelativePath: "retry.go", StartLine: 3, IsExported: true, Signature: chunks[1].Symbols[0].Signature},
	}))

	view, err := newGraphView(ctx, graphStore)
	require.NoError(t, err)

	return &projectState{
		rootPath: dir,
		metadata: metadata,
		vector:   vector,
		view:     view,
		loadedAt: time.Now(),
		lastUsed: time.Now(),
	}
}

func TestDaemon_HandleSimilar_FindsSemanticMatchAndDropsSelf(t *testing.T) {
	p := similarTestProject(t)

	d := &Daemon{
		embedder: embed.NewStaticEmbedder768(),
		projects: map[string]*projectState{p.rootPath: p},
	}

	results, err := d.HandleSimilar(context.Background(), GraphParams{
		RootPath: p.rootPath,
		Symbol:   "Retry",
		Limit:    10,
	})
	require.NoError(t, err)

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
		assert.NotEqual(t, "Retry", r.Name, "self-match must be dropped")
	}
	assert.Contains(t, names, "RetryWithBackoff")
}

func TestDaemon_HandleSimilar_RequiresSymbol(t *testing.T) {
	p := similarTestProject(t)
	d := &Daemon{
		embedder: embed.NewStaticEmbedder768(),
		projects: map[string]*projectState{p.rootPath: p},
	}

	_, err := d.HandleSimilar(context.Background(), GraphParams{RootPath: p.rootPath})
	assert.Error(t, err)
}

func TestDaemon_HandleSimilar_NoGraphStore(t *testing.T) {
	p := similarTestProject(t)
	p.view = nil
	d := &Daemon{
		embedder: embed.NewStaticEmbedder768(),
		projects: map[string]*projectState{p.rootPath: p},
	}

	_, err := d.HandleSimilar(context.Background(), GraphParams{RootPath: p.rootPath, Symbol: "Retry"})
	assert.Error(t, err)
}
