package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/codeintel/internal/embed"
	cierrors "github.com/codeintel/codeintel/internal/errors"
	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/hash"
	"github.com/codeintel/codeintel/internal/store"
)

type orchestratorFixture struct {
	orch     *Orchestrator
	cfg      OrchestratorConfig
	metadata store.MetadataStore
	vectors  store.VectorStore
	graph    store.GraphStore
	rootDir  string
	indexDir string
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	rootDir := t.TempDir()
	indexDir := filepath.Join(t.TempDir(), "db", "T")

	metadata, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { metadata.Close() })

	embedder := embed.NewStaticEmbedder()

	vectors, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	graphStore, err := store.NewSQLiteGraphStore("")
	require.NoError(t, err)
	t.Cleanup(func() { graphStore.Close() })

	orch, err := NewOrchestrator(OrchestratorDeps{
		Metadata:  metadata,
		Vectors:   vectors,
		Graph:     graphStore,
		Embedder:  embedder,
		Extractor: graph.NewExtractor(),
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	return &orchestratorFixture{
		orch:     orch,
		metadata: metadata,
		vectors:  vectors,
		graph:    graphStore,
		rootDir:  rootDir,
		indexDir: indexDir,
		cfg: OrchestratorConfig{
			IndexName: "T",
			RootDir:   rootDir,
			IndexDir:  indexDir,
			Mode:      ModeCreate,
		},
	}
}

func (f *orchestratorFixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.rootDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (f *orchestratorFixture) run(t *testing.T, mode Mode) *OrchestratorResult {
	t.Helper()
	cfg := f.cfg
	cfg.Mode = mode
	result, err := f.orch.Run(context.Background(), cfg)
	require.NoError(t, err)
	return result
}

func seedTwoFiles(t *testing.T, f *orchestratorFixture) {
	f.writeFile(t, "file1.txt", "Initial content for file one.")
	f.writeFile(t, "file2.ts", `function hello() { return "world"; }`)
}

func TestOrchestratorCreate(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)

	result := f.run(t, ModeCreate)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 2, result.FilesAdded)
	assert.GreaterOrEqual(t, result.ChunksCreated, 1)

	meta, err := store.LoadIndexMeta(f.indexDir)
	require.NoError(t, err)
	assert.Equal(t, store.IndexStatusReady, meta.Status)
	assert.Equal(t, int64(1), meta.GenerationID)
	assert.Equal(t, "T", meta.Name)
}

func TestOrchestratorUnchangedUpdate(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	result := f.run(t, ModeUpdate)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 2, result.FilesSkipped)
	assert.Equal(t, 0, result.FilesUpdated)
	assert.Equal(t, 0, result.FilesAdded)
	assert.Equal(t, 0, result.FilesDeleted)
	assert.Equal(t, 0, result.ChunksCreated)
}

func TestOrchestratorModifiedFile(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	modified := "MODIFIED content for file one - this is different!"
	f.writeFile(t, "file1.txt", modified)

	result := f.run(t, ModeUpdate)

	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 1, result.FilesUpdated)
	assert.GreaterOrEqual(t, result.ChunksCreated, 1)

	projectID := store.ProjectIDFor(f.rootDir)
	file, err := f.metadata.GetFileByPath(context.Background(), projectID, "file1.txt")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, hash.Bytes([]byte(modified)), file.ContentHash)
}

func TestOrchestratorDeletedFile(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	before := f.vectors.Count()
	require.NoError(t, os.Remove(filepath.Join(f.rootDir, "file1.txt")))

	result := f.run(t, ModeUpdate)

	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, 1, result.FilesProcessed)

	projectID := store.ProjectIDFor(f.rootDir)
	file, err := f.metadata.GetFileByPath(context.Background(), projectID, "file1.txt")
	require.NoError(t, err)
	assert.Nil(t, file)

	chunks, err := f.metadata.GetChunksByFile(context.Background(), store.FileIDFor("file1.txt"))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.Less(t, f.vectors.Count(), before)
}

func TestOrchestratorConsecutiveUpdatesIdempotent(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	first := f.run(t, ModeUpdate)
	second := f.run(t, ModeUpdate)

	assert.Equal(t, first.FilesSkipped, second.FilesSkipped)
	assert.Equal(t, 0, second.ChunksCreated)
	assert.Equal(t, 0, second.FilesDeleted)
}

func TestOrchestratorCreateOnExistingConflicts(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	cfg := f.cfg
	cfg.Mode = ModeCreate
	_, err := f.orch.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, cierrorsCategory(err), "CONFLICT")
}

func TestOrchestratorUpdateOnMissingConflicts(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)

	cfg := f.cfg
	cfg.Mode = ModeUpdate
	_, err := f.orch.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, cierrorsCategory(err), "CONFLICT")
}

func TestOrchestratorRetryOnReadyConflicts(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	cfg := f.cfg
	cfg.Mode = ModeRetry
	_, err := f.orch.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, cierrorsCategory(err), "CONFLICT")
}

func TestOrchestratorRetryRebuildsFailedIndex(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)
	f.run(t, ModeCreate)

	meta, err := store.LoadIndexMeta(f.indexDir)
	require.NoError(t, err)
	meta.Status = store.IndexStatusFailed
	require.NoError(t, store.SaveIndexMeta(f.indexDir, meta))

	result := f.run(t, ModeRetry)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.GreaterOrEqual(t, result.ChunksCreated, 1)

	meta, err = store.LoadIndexMeta(f.indexDir)
	require.NoError(t, err)
	assert.Equal(t, store.IndexStatusReady, meta.Status)
}

func TestOrchestratorMissingRootFails(t *testing.T) {
	f := newOrchestratorFixture(t)

	cfg := f.cfg
	cfg.RootDir = filepath.Join(f.rootDir, "does-not-exist")
	_, err := f.orch.Run(context.Background(), cfg)
	require.Error(t, err)

	// input errors never write persisted state
	assert.False(t, store.IndexMetaExists(f.indexDir))
}

func TestOrchestratorEmptyFile(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.writeFile(t, "empty.txt", "")

	result := f.run(t, ModeCreate)

	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 0, result.ChunksCreated)

	projectID := store.ProjectIDFor(f.rootDir)
	file, err := f.metadata.GetFileByPath(context.Background(), projectID, "empty.txt")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, hash.Bytes(nil), file.ContentHash)
}

func TestOrchestratorGenerationBumpsPerRun(t *testing.T) {
	f := newOrchestratorFixture(t)
	seedTwoFiles(t, f)

	f.run(t, ModeCreate)
	f.run(t, ModeUpdate)
	f.run(t, ModeUpdate)

	meta, err := store.LoadIndexMeta(f.indexDir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), meta.GenerationID)
}

func TestOrchestratorExtractsGraph(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.writeFile(t, "auth.ts", `export function checkAuth(u) { return validateUser(u); }
function validateUser(u) { return !!u; }
`)

	result := f.run(t, ModeCreate)

	assert.GreaterOrEqual(t, result.SymbolsExtracted, 2)
	assert.GreaterOrEqual(t, result.CallsExtracted, 1)

	symbols, err := f.graph.SearchSymbolsByName(context.Background(), "validateUser", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, symbols)
}

func TestOrchestratorUpdateReplacesGraphRows(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.writeFile(t, "auth.ts", `export function checkAuth(u) { return true; }`)
	f.run(t, ModeCreate)

	f.writeFile(t, "auth.ts", `export function handleLogin(u) { return true; }`)
	f.run(t, ModeUpdate)

	old, err := f.graph.SearchSymbolsByName(context.Background(), "checkAuth", 10)
	require.NoError(t, err)
	assert.Empty(t, old, "replaced file's symbols must be gone")

	current, err := f.graph.SearchSymbolsByName(context.Background(), "handleLogin", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, current)
}

func cierrorsCategory(err error) string {
	return string(cierrors.GetCategory(err))
}
