package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/config"
	"github.com/codeintel/codeintel/internal/daemon"
	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/output"
	"github.com/codeintel/codeintel/internal/search"
	"github.com/codeintel/codeintel/internal/store"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var filter, language string
	var diversity float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over the current project",
		Long: `Embed the query, find the nearest indexed chunks, and diversify the
results with MMR. Uses the running daemon when one is up (instant
responses); otherwise opens the project's stores directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(".")
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, root, args[0], search.SearchOptions{
				Limit:     limit,
				Filter:    filter,
				Language:  language,
				Diversity: &diversity,
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "Content filter: all, code, docs")
	cmd.Flags().StringVar(&language, "language", "", "Restrict to one language")
	cmd.Flags().Float64Var(&diversity, "diversity", 0.7, "MMR lambda in [0,1]; 1 keeps pure similarity order")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, root, query string, opts search.SearchOptions) error {
	out := output.New(cmd.OutOrStdout())

	// prefer the daemon: it already holds the model and the stores
	client := daemon.NewClient(daemon.DefaultConfig())
	if client.IsRunning() {
		results, err := client.Search(ctx, daemon.SearchParams{
			Query:     query,
			RootPath:  root,
			Limit:     opts.Limit,
			Filter:    opts.Filter,
			Language:  opts.Language,
			Diversity: opts.Diversity,
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			out.Status("", fmt.Sprintf("%s:%d-%d  (%.2f)", r.FilePath, r.StartLine, r.EndLine, r.Score))
			out.Status("", indent(r.Content))
		}
		if len(results) == 0 {
			out.Status("", "No results")
		}
		return nil
	}

	return runLocalSearch(ctx, cmd, root, query, opts)
}

// runLocalSearch opens the project's stores directly, used when no daemon
// is running.
func runLocalSearch(ctx context.Context, cmd *cobra.Command, root, query string, opts search.SearchOptions) error {
	out := output.New(cmd.OutOrStdout())
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

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectors, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			return fmt.Errorf("load vector index: %w", err)
		}
	}

	engineConfig := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		engineConfig.DefaultLimit = cfg.Search.MaxResults
	}
	engine, err := search.NewEngine(vectors, embedder, metadata, engineConfig)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.Search(ctx, query, opts)
	if err != nil {
		return err
	}
	for _, r := range results {
		out.Status("", fmt.Sprintf("%s:%d-%d  (%.2f)", r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Score))
		out.Status("", indent(r.Chunk.Content))
	}
	if len(results) == 0 {
		out.Status("", "No results")
	}
	return nil
}

// indent prefixes every line for readable result bodies.
func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
