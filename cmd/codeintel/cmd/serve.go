package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/config"
	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/mcp"
	"github.com/codeintel/codeintel/internal/search"
	"github.com/codeintel/codeintel/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve the project's tools over MCP on stdio",
		Long: `Expose semantic search and the code-graph query tools to an MCP client
(an editor or agent) over stdin/stdout. Meant to be launched by the
client, not interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd, path)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, path string) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("serve speaks MCP over stdio; launch it from an MCP client, not a terminal")
	}

	ctx := cmd.Context()
	root, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dataDir := filepath.Join(root, ".codeintel")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return fmt.Errorf("open metadata (is the project indexed?): %w", err)
	}
	defer func() { _ = metadata.Close() }()

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vectors, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			return fmt.Errorf("load vector index: %w", err)
		}
	}

	engine, err := search.NewEngine(vectors, embedder, metadata, search.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	server, err := mcp.NewServer(engine, metadata, embedder, cfg, root)
	if err != nil {
		return err
	}
	server.SetVectorStore(vectors)

	if graphStore, err := store.NewSQLiteGraphStore(filepath.Join(dataDir, "graph.db")); err == nil {
		defer func() { _ = graphStore.Close() }()
		server.SetGraphStore(graphStore)
	}

	return server.Serve(ctx, &sdkmcp.StdioTransport{})
}
