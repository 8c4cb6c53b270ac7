package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/config"
	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/index"
	"github.com/codeintel/codeintel/internal/output"
	"github.com/codeintel/codeintel/internal/store"
)

func newUpdateCmd() *cobra.Command {
	var retry bool
	var summarizeModel string

	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Incrementally reindex changed files",
		Long: `Re-walk the project tree and reindex only files whose content changed.

Unchanged files are skipped using their content hash; deleted files have
their chunks and metadata removed. Use --retry to restart an index that
previously failed (all chunks are purged first).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			mode := index.ModeUpdate
			if retry {
				mode = index.ModeRetry
			}
			return runUpdate(cmd.Context(), cmd, path, mode, summarizeModel)
		},
	}

	cmd.Flags().BoolVar(&retry, "retry", false, "Restart a failed index from scratch")
	cmd.Flags().StringVar(&summarizeModel, "summarize", "", "Summarization provider as provider:model (e.g. ollama:qwen2.5-coder)")
	return cmd
}

func runUpdate(ctx context.Context, cmd *cobra.Command, path string, mode index.Mode, summarizeModel string) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	dataDir := filepath.Join(root, ".codeintel")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	graphStore, err := store.NewSQLiteGraphStore(filepath.Join(dataDir, "graph.db"))
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer func() { _ = graphStore.Close() }()

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	inner, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = inner.Close() }()

	cache, err := embed.OpenDiskCache(filepath.Join(config.CacheDir(), "embeddings.db"))
	if err != nil {
		return fmt.Errorf("open embedding cache: %w", err)
	}
	defer func() { _ = cache.Close() }()
	embedder := embed.NewDiskCachedEmbedder(inner, cache, embed.DefaultBatchSize)

	vectors, err := store.NewVectorIndex(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("create vector store: %w", err)
	}
	defer func() { _ = vectors.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			return fmt.Errorf("load vector store: %w", err)
		}
	}

	var summarizer embed.Summarizer
	if summarizeModel != "" {
		summarizer, err = embed.NewSummarizer(summarizeModel)
		if err != nil {
			return err
		}
	}

	// first run against a tree that has never been indexed this way
	// falls through to create rather than surfacing a conflict
	if mode == index.ModeUpdate && !store.IndexMetaExists(dataDir) {
		mode = index.ModeCreate
	}

	extractor := graph.NewExtractor()
	defer extractor.Close()

	orch, err := index.NewOrchestrator(index.OrchestratorDeps{
		Metadata:   metadata,
		Vectors:    vectors,
		Graph:      graphStore,
		Embedder:   embedder,
		Summarizer: summarizer,
		Extractor:  extractor,
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	result, err := orch.Run(ctx, index.OrchestratorConfig{
		IndexName: filepath.Base(root),
		RootDir:   root,
		IndexDir:  dataDir,
		Mode:      mode,
	})
	if err != nil {
		return err
	}

	if err := vectors.Save(vectorPath); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}

	out.Success(fmt.Sprintf("Processed %d files in %s", result.FilesProcessed, result.Duration.Round(10*time.Millisecond)))
	out.Status("", fmt.Sprintf("skipped %d, updated %d, added %d, deleted %d, chunks %d",
		result.FilesSkipped, result.FilesUpdated, result.FilesAdded, result.FilesDeleted, result.ChunksCreated))
	if result.SymbolsExtracted > 0 {
		out.Status("", fmt.Sprintf("symbols %d, dependencies %d, calls %d",
			result.SymbolsExtracted, result.DependenciesExtracted, result.CallsExtracted))
	}
	if result.SymbolsSummarized > 0 {
		out.Status("", fmt.Sprintf("summarized %d symbols", result.SymbolsSummarized))
	}
	return nil
}
