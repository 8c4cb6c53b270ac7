package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.InDelta(t, 0.7, cfg.Search.Diversity, 1e-9)
	assert.Equal(t, 10, cfg.Paths.MaxFileSizeMB)
	require.NoError(t, cfg.Validate())
}

func TestLoadProjectFileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte(`
embeddings:
  provider: ollama
  model: embeddinggemma
search:
  max_results: 25
paths:
  exclude:
    - "docs/generated/**"
`), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, []string{"docs/generated/**"}, cfg.Paths.Exclude)
	// untouched fields keep their defaults
	assert.InDelta(t, 0.7, cfg.Search.Diversity, 1e-9)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte("embeddings:\n  provider: ollama\n"), 0644))
	t.Setenv("CODEINTEL_EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoadMissingFilesIsFine(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoadMalformedFileFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte("embeddings: ["), 0644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestValidateRejectsBadDiversity(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.Diversity = 1.5
	assert.Error(t, cfg.Validate())
}

func TestHomeDirHonorsEnvOverride(t *testing.T) {
	t.Setenv(HomeEnvVar, "/custom/home")
	assert.Equal(t, "/custom/home", HomeDir())
	assert.Equal(t, "/custom/home/cache", CacheDir())
	assert.Equal(t, "/custom/home/pids", PidsDir())
	assert.Equal(t, "/custom/home/sockets", SocketsDir())
	assert.Equal(t, "/custom/home/db", DBDir())
	assert.Equal(t, "/custom/home/logs", LogsDir())
}
