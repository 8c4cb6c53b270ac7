package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMetaSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "T")

	meta := &IndexMeta{
		Name:               "T",
		RootPath:           "/repo",
		EmbeddingModel:     "ollama:embeddinggemma",
		EmbeddingDimension: 768,
		Status:             IndexStatusBuilding,
		CreatedAt:          time.Now().UTC().Truncate(time.Second),
		UpdatedAt:          time.Now().UTC().Truncate(time.Second),
		ChunkCount:         42,
		GenerationID:       3,
	}
	require.NoError(t, SaveIndexMeta(dir, meta))
	assert.True(t, IndexMetaExists(dir))

	loaded, err := LoadIndexMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, meta.Name, loaded.Name)
	assert.Equal(t, meta.Status, loaded.Status)
	assert.Equal(t, meta.ChunkCount, loaded.ChunkCount)
	assert.Equal(t, meta.GenerationID, loaded.GenerationID)
	assert.Equal(t, MetaSchemaVersion, loaded.SchemaVersion)
}

func TestIndexMetaRejectsUnknownMajor(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "T")
	require.NoError(t, os.MkdirAll(dir, 0755))

	raw, err := json.Marshal(map[string]any{"name": "T", "schemaVersion": MetaSchemaVersion + 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), raw, 0644))

	_, err = LoadIndexMeta(dir)
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrUnknownSchemaMajor{})
}

func TestIndexMetaDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "T")
	require.NoError(t, SaveIndexMeta(dir, &IndexMeta{Name: "T"}))

	require.NoError(t, DeleteIndexMeta(dir))
	assert.False(t, IndexMetaExists(dir))

	// deleting twice is fine
	require.NoError(t, DeleteIndexMeta(dir))
}

func TestListIndexMetas(t *testing.T) {
	dbDir := t.TempDir()

	require.NoError(t, SaveIndexMeta(filepath.Join(dbDir, "alpha"), &IndexMeta{Name: "alpha", Status: IndexStatusReady}))
	require.NoError(t, SaveIndexMeta(filepath.Join(dbDir, "beta"), &IndexMeta{Name: "beta", Status: IndexStatusFailed}))
	// a directory without a sidecar is skipped
	require.NoError(t, os.MkdirAll(filepath.Join(dbDir, "not-an-index"), 0755))

	metas, err := ListIndexMetas(dbDir)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	names := []string{metas[0].Name, metas[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestListIndexMetasMissingDir(t *testing.T) {
	metas, err := ListIndexMetas(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Nil(t, metas)
}
