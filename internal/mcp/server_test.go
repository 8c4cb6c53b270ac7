package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/codeintel/internal/config"
	cierrors "github.com/codeintel/codeintel/internal/errors"
	"github.com/codeintel/codeintel/internal/search"
	"github.com/codeintel/codeintel/internal/store"
)

// MockSearchEngine returns canned results for the search tool.
type MockSearchEngine struct {
	results []*search.SearchResult
	err     error
}

func (m *MockSearchEngine) Search(context.Context, string, search.SearchOptions) ([]*search.SearchResult, error) {
	return m.results, m.err
}

func newTestServer(t *testing.T, engine SearchEngine) *Server {
	t.Helper()
	metadata, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { metadata.Close() })

	srv, err := NewServer(engine, metadata, nil, config.NewConfig(), "/repo")
	require.NoError(t, err)
	return srv
}

func TestSearchHandlerRequiresQuery(t *testing.T) {
	srv := newTestServer(t, &MockSearchEngine{})

	_, _, err := srv.mcpSearchHandler(context.Background(), nil, SearchInput{})
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchHandlerMapsResults(t *testing.T) {
	engine := &MockSearchEngine{results: []*search.SearchResult{
		{Chunk: &store.Chunk{FilePath: "a.go", StartLine: 1, EndLine: 4, Content: "func A() {}", Language: "go"}, Score: 0.8},
	}}
	srv := newTestServer(t, engine)

	_, out, err := srv.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "A"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a.go", out.Results[0].File)
	assert.InDelta(t, 0.8, out.Results[0].Score, 1e-9)
}

func TestStatusHandlerReportsProject(t *testing.T) {
	srv := newTestServer(t, &MockSearchEngine{})
	ctx := context.Background()

	require.NoError(t, srv.metadata.SaveProject(ctx, &store.Project{
		ID: projectIDFor("/repo"), Name: "repo", RootPath: "/repo", FileCount: 3, ChunkCount: 9,
	}))

	_, out, err := srv.mcpStatusHandler(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.FileCount)
	assert.Equal(t, 9, out.ChunkCount)
	assert.Equal(t, "/repo", out.RootPath)
}

func TestMapErrorTranslatesTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{cierrors.New(cierrors.ErrCodeIndexUnknown, "index 'T' not found", nil), ErrCodeIndexNotFound},
		{cierrors.New(cierrors.ErrCodeEmbeddingTimeout, "timed out", nil), ErrCodeTimeout},
		{cierrors.New(cierrors.ErrCodeInvalidQuery, "empty query", nil), ErrCodeInvalidParams},
		{cierrors.New(cierrors.ErrCodeIndexExists, "exists", nil), ErrCodeInvalidRequest},
		{cierrors.New(cierrors.ErrCodeEmbeddingFailed, "provider down", nil), ErrCodeEmbeddingFailed},
		{cierrors.New(cierrors.ErrCodeInternal, "boom", nil), ErrCodeInternalError},
		{fmt.Errorf("plain error"), ErrCodeInternalError},
	}
	for _, tc := range cases {
		got := MapError(tc.err)
		require.NotNil(t, got)
		assert.Equal(t, tc.code, got.Code, "for %v", tc.err)
	}
}

func TestMapErrorKeepsSuggestion(t *testing.T) {
	err := cierrors.New(cierrors.ErrCodeIndexExists, "index exists", nil).
		WithSuggestion("use update mode")
	got := MapError(err)
	assert.Contains(t, got.Message, "use update mode")
}

func TestMapErrorWrapped(t *testing.T) {
	inner := cierrors.New(cierrors.ErrCodeEmbeddingTimeout, "slow", nil)
	got := MapError(fmt.Errorf("during search: %w", inner))
	assert.Equal(t, ErrCodeTimeout, got.Code)
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
