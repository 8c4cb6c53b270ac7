// Package mcp exposes the engine over the Model Context Protocol: a
// semantic search tool plus the code-graph query tools, served over stdio
// to an MCP-speaking client.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeintel/codeintel/internal/config"
	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/search"
	"github.com/codeintel/codeintel/internal/store"
)

// SearchEngine is the slice of the search engine the server needs; the
// real engine satisfies it, tests pass a stub.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)
}

// Server hosts the MCP tool surface for one project.
type Server struct {
	mcp      *mcp.Server
	engine   SearchEngine
	metadata store.MetadataStore
	embedder embed.Embedder
	cfg      *config.Config
	rootPath string
	logger   *slog.Logger

	// optional stores; their tools register when attached
	graph  store.GraphStore
	vector store.VectorStore
}

// NewServer builds the server and registers the always-available tools.
func NewServer(engine SearchEngine, metadata store.MetadataStore, embedder embed.Embedder, cfg *config.Config, rootPath string) (*Server, error) {
	if metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		metadata: metadata,
		embedder: embedder,
		cfg:      cfg,
		rootPath: rootPath,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codeintel",
		Version: "1.0.0",
	}, nil)

	s.registerCoreTools()
	return s, nil
}

// SetGraphStore attaches the code graph and registers its tools.
func (s *Server) SetGraphStore(g store.GraphStore) {
	s.graph = g
	if g != nil {
		s.registerGraphTools()
	}
}

// SetVectorStore attaches the chunk-vector index the similar tool needs.
func (s *Server) SetVectorStore(v store.VectorStore) {
	s.vector = v
}

// Serve runs the MCP session over the transport until ctx ends.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting", slog.String("root", s.rootPath))
	return s.mcp.Run(ctx, transport)
}

// SearchInput is the search tool's input.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"natural-language or code query"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results, default 10"`
	Filter   string `json:"filter,omitempty" jsonschema:"all, code, or docs"`
	Language string `json:"language,omitempty" jsonschema:"restrict to one language"`
}

// SearchHit is one result row.
type SearchHit struct {
	File      string  `json:"file"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
	Language  string  `json:"language,omitempty"`
}

// SearchOutput is the search tool's output.
type SearchOutput struct {
	Results []SearchHit `json:"results"`
}

// StatusInput is the index_status tool's (empty) input.
type StatusInput struct{}

// StatusOutput reports what is indexed for the project.
type StatusOutput struct {
	RootPath   string `json:"root_path"`
	FileCount  int    `json:"file_count"`
	ChunkCount int    `json:"chunk_count"`
	Model      string `json:"model,omitempty"`
}

func (s *Server) registerCoreTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over the indexed project: returns the most relevant, diversity-reranked chunks.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report what is indexed for this project: file and chunk counts and the embedding model.",
	}, s.mcpStatusHandler)
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if s.engine == nil {
		return nil, SearchOutput{}, fmt.Errorf("search engine unavailable")
	}

	results, err := s.engine.Search(ctx, input.Query, search.SearchOptions{
		Limit:    input.Limit,
		Filter:   input.Filter,
		Language: input.Language,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		out.Results = append(out.Results, SearchHit{
			File:      r.Chunk.FilePath,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Score:     r.Score,
			Content:   r.Chunk.Content,
			Language:  r.Chunk.Language,
		})
	}
	return nil, out, nil
}

func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	out := StatusOutput{RootPath: s.rootPath}
	if s.embedder != nil {
		out.Model = s.embedder.ModelName()
	}

	// the project id convention is the hashed absolute root
	project, err := s.metadata.GetProject(ctx, projectIDFor(s.rootPath))
	if err != nil {
		return nil, out, MapError(err)
	}
	if project != nil {
		out.FileCount = project.FileCount
		out.ChunkCount = project.ChunkCount
	}
	return nil, out, nil
}
