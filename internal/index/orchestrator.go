package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/codeintel/codeintel/internal/chunk"
	"github.com/codeintel/codeintel/internal/embed"
	cierrors "github.com/codeintel/codeintel/internal/errors"
	"github.com/codeintel/codeintel/internal/graph"
	"github.com/codeintel/codeintel/internal/hash"
	"github.com/codeintel/codeintel/internal/scanner"
	"github.com/codeintel/codeintel/internal/store"
)

// Mode selects how Run treats an existing index.
type Mode string

const (
	// ModeCreate builds a new index; the target must not exist.
	ModeCreate Mode = "create"
	// ModeUpdate re-walks the tree and reindexes only changed files;
	// the target must exist and not be failed.
	ModeUpdate Mode = "update"
	// ModeRetry restarts a failed index from scratch: all chunks are
	// purged first.
	ModeRetry Mode = "retry"
)

// OrchestratorConfig configures one Run.
type OrchestratorConfig struct {
	// IndexName names the index; recorded in meta.json.
	IndexName string

	// RootDir is the source tree to index.
	RootDir string

	// IndexDir is the index's data directory (meta.json, tables, vectors).
	IndexDir string

	// Mode is create, update, or retry.
	Mode Mode

	// Concurrency caps the per-file chunk+extract fan-out. Zero means 10.
	Concurrency int

	// DBBatchSize bounds chunk rows written per store call. Zero means 100.
	// Embedding batch size is a property of the embedder itself.
	DBBatchSize int

	// Resummarize regenerates summaries for symbols that already have one.
	Resummarize bool
}

// OrchestratorDeps are the injected collaborators, mirroring the Runner's
// dependency-injection shape so tests can swap any stage.
type OrchestratorDeps struct {
	Metadata store.MetadataStore
	Vectors  store.VectorStore
	Graph    store.GraphStore
	Embedder embed.Embedder

	// Summarizer is optional; nil records summarization as skipped.
	Summarizer embed.Summarizer

	// Extractor is optional; nil disables symbol/dependency/call extraction.
	Extractor *graph.Extractor
}

// OrchestratorResult carries the counters for one Run.
type OrchestratorResult struct {
	FilesProcessed int
	ChunksCreated  int

	// update-mode counters
	FilesSkipped int
	FilesUpdated int
	FilesAdded   int
	FilesDeleted int

	SymbolsExtracted      int
	DependenciesExtracted int
	CallsExtracted        int

	SymbolsSummarized    int
	SummarizationSkipped bool

	Duration time.Duration
}

// Orchestrator drives walker → hasher → chunker → embedder → store for one
// index, in create, update, or retry mode. Writes against one index are
// serialized by a directory flock; a second concurrent writer fails fast.
type Orchestrator struct {
	deps OrchestratorDeps

	codeChunker     *chunk.CodeChunker
	markdownChunker *chunk.MarkdownChunker
	textChunker     *chunk.TextChunker
}

// NewOrchestrator validates deps and builds the chunker set.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &Orchestrator{
		deps:            deps,
		codeChunker:     chunk.NewCodeChunker(),
		markdownChunker: chunk.NewMarkdownChunker(),
		textChunker:     chunk.NewTextChunker(),
	}, nil
}

// Close releases the chunkers' parsers.
func (o *Orchestrator) Close() {
	o.codeChunker.Close()
}

// fileOutcome is one walked file's processing result, produced by the
// parallel stage and consumed by the sequential write stage in walk order.
type fileOutcome struct {
	info        *scanner.FileInfo
	contentHash string

	// action decided against the prior hash map
	skipped bool
	updated bool

	storeFile  *store.File
	chunks     []*store.Chunk
	vectors    [][]float32
	extraction *graph.Extraction
}

// Run executes one indexing pass and returns its counters. On any
// unrecoverable error the index is marked failed before the error is
// returned, so a later run can use retry mode.
func (o *Orchestrator) Run(ctx context.Context, cfg OrchestratorConfig) (*OrchestratorResult, error) {
	start := time.Now()

	if _, err := os.Stat(cfg.RootDir); err != nil {
		return nil, cierrors.New(cierrors.ErrCodeRootNotFound,
			fmt.Sprintf("root path %s does not exist", cfg.RootDir), err)
	}

	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, cierrors.StoreError("create index directory", err)
	}

	lock := flock.New(cfg.IndexDir + "/.write.lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, cierrors.StoreError("acquire index write lock", err)
	}
	if !locked {
		return nil, cierrors.ConflictError(cierrors.ErrCodeIndexExists,
			fmt.Sprintf("index %s is being written by another process", cfg.IndexName),
			"wait for the other indexer to finish", nil)
	}
	defer lock.Unlock()

	meta, err := o.prepareMeta(cfg)
	if err != nil {
		return nil, err
	}

	result, err := o.run(ctx, cfg, meta)
	if err != nil {
		meta.Status = store.IndexStatusFailed
		meta.UpdatedAt = time.Now()
		if saveErr := store.SaveIndexMeta(cfg.IndexDir, meta); saveErr != nil {
			slog.Error("failed to mark index failed", slog.String("index", cfg.IndexName),
				slog.String("error", saveErr.Error()))
		}
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// prepareMeta enforces the mode's preconditions and writes the building
// status. Conflict errors leave persisted state untouched.
func (o *Orchestrator) prepareMeta(cfg OrchestratorConfig) (*store.IndexMeta, error) {
	exists := store.IndexMetaExists(cfg.IndexDir)
	now := time.Now()

	switch cfg.Mode {
	case ModeCreate:
		if exists {
			return nil, cierrors.ConflictError(cierrors.ErrCodeIndexExists,
				fmt.Sprintf("index %s already exists", cfg.IndexName),
				"use update mode, or delete the index first", nil)
		}
		meta := &store.IndexMeta{
			Name:               cfg.IndexName,
			RootPath:           cfg.RootDir,
			EmbeddingModel:     o.deps.Embedder.ModelName(),
			EmbeddingDimension: o.deps.Embedder.Dimensions(),
			Status:             store.IndexStatusBuilding,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := store.SaveIndexMeta(cfg.IndexDir, meta); err != nil {
			return nil, cierrors.StoreError("write meta.json", err)
		}
		return meta, nil

	case ModeUpdate, ModeRetry:
		if !exists {
			return nil, cierrors.ConflictError(cierrors.ErrCodeIndexNotFound,
				fmt.Sprintf("index %s does not exist", cfg.IndexName),
				"create the index first", nil)
		}
		meta, err := store.LoadIndexMeta(cfg.IndexDir)
		if err != nil {
			return nil, cierrors.StoreError("read meta.json", err)
		}
		if cfg.Mode == ModeUpdate && meta.Status == store.IndexStatusFailed {
			return nil, cierrors.ConflictError(cierrors.ErrCodeIndexFailed,
				fmt.Sprintf("index %s previously failed", cfg.IndexName),
				"run retry to restart a failed index", nil)
		}
		if cfg.Mode == ModeRetry && meta.Status != store.IndexStatusFailed {
			return nil, cierrors.ConflictError(cierrors.ErrCodeIndexNotFailed,
				fmt.Sprintf("index %s is %s, not failed", cfg.IndexName, meta.Status),
				"retry only applies to failed indexes; use update", nil)
		}
		meta.Status = store.IndexStatusBuilding
		meta.UpdatedAt = now
		if err := store.SaveIndexMeta(cfg.IndexDir, meta); err != nil {
			return nil, cierrors.StoreError("write meta.json", err)
		}
		return meta, nil

	default:
		return nil, cierrors.InputError(fmt.Sprintf("unknown mode %q", cfg.Mode), nil)
	}
}

func (o *Orchestrator) run(ctx context.Context, cfg OrchestratorConfig, meta *store.IndexMeta) (*OrchestratorResult, error) {
	result := &OrchestratorResult{}
	projectID := store.ProjectIDFor(cfg.RootDir)
	now := time.Now()

	if err := o.deps.Metadata.SaveProject(ctx, &store.Project{
		ID:        projectID,
		Name:      cfg.IndexName,
		RootPath:  cfg.RootDir,
		IndexedAt: now,
		Version:   fmt.Sprintf("%d", store.CurrentSchemaVersion),
	}); err != nil {
		return nil, cierrors.StoreError("save project", err)
	}

	if cfg.Mode == ModeRetry {
		if err := o.purge(ctx, projectID); err != nil {
			return nil, err
		}
	}

	// Prior path → hash map, empty except in update mode. The file table is
	// created eagerly with the index, so there is no legacy chunk-scan path.
	prior := map[string]*store.File{}
	if cfg.Mode == ModeUpdate {
		var err error
		prior, err = o.deps.Metadata.GetFilesForReconciliation(ctx, projectID)
		if err != nil {
			return nil, cierrors.StoreError("load file hashes", err)
		}
	}

	files, err := o.walk(ctx, cfg.RootDir)
	if err != nil {
		return nil, err
	}

	outcomes, err := o.processFiles(ctx, cfg, projectID, files, prior, now)
	if err != nil {
		return nil, err
	}

	if err := o.writeOutcomes(ctx, cfg, projectID, outcomes, result); err != nil {
		return nil, err
	}

	// Deletion sweep: prior paths absent from this walk.
	walked := make(map[string]bool, len(files))
	for _, f := range files {
		walked[f.Path] = true
	}
	for path := range prior {
		if walked[path] {
			continue
		}
		if err := o.removeFileRecords(ctx, path); err != nil {
			return nil, err
		}
		result.FilesDeleted++
	}

	if o.deps.Extractor != nil && o.deps.Graph != nil {
		o.summarize(ctx, cfg, result, outcomes)
	} else {
		result.SummarizationSkipped = true
	}

	if err := o.deps.Metadata.RefreshProjectStats(ctx, projectID); err != nil {
		slog.Warn("failed to refresh project stats", slog.String("error", err.Error()))
	}

	meta.Status = store.IndexStatusReady
	meta.UpdatedAt = time.Now()
	if project, err := o.deps.Metadata.GetProject(ctx, projectID); err == nil && project != nil {
		meta.ChunkCount = project.ChunkCount
	}
	meta.GenerationID++
	if err := store.SaveIndexMeta(cfg.IndexDir, meta); err != nil {
		return nil, cierrors.StoreError("finalize meta.json", err)
	}

	return result, nil
}

// walk enumerates the tree in the scanner's stable depth-first order.
func (o *Orchestrator) walk(ctx context.Context, root string) ([]*scanner.FileInfo, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}

	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		ExcludePatterns:  []string{"**/.codeintel/**"},
		RespectGitignore: true,
	})
	if err != nil {
		return nil, err
	}

	var files []*scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			// unreadable entries are skipped with a recorded warning
			path := ""
			if r.File != nil {
				path = r.File.Path
			}
			slog.Warn("scan warning", slog.String("file", path), slog.String("error", r.Error.Error()))
			continue
		}
		files = append(files, r.File)
	}
	return files, nil
}

// processFiles runs the per-file chunk+embed+extract stage with bounded
// fan-out. Results come back positioned by walk order so the write stage
// preserves the walker's ordering guarantees.
func (o *Orchestrator) processFiles(ctx context.Context, cfg OrchestratorConfig, projectID string, files []*scanner.FileInfo, prior map[string]*store.File, now time.Time) ([]*fileOutcome, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	outcomes := make([]*fileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, file := range files {
		g.Go(func() error {
			oc, err := o.processFile(gctx, cfg, projectID, file, prior, now)
			if err != nil {
				return err
			}
			outcomes[i] = oc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (o *Orchestrator) processFile(ctx context.Context, cfg OrchestratorConfig, projectID string, file *scanner.FileInfo, prior map[string]*store.File, now time.Time) (*fileOutcome, error) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		// unstatable/unreadable files are skipped with a warning, matching
		// the walker's failure model
		slog.Warn("read failed, skipping", slog.String("file", file.Path), slog.String("error", err.Error()))
		return &fileOutcome{info: file, skipped: true}, nil
	}

	contentHash := hash.Bytes(content)
	oc := &fileOutcome{info: file, contentHash: contentHash}

	if old, ok := prior[file.Path]; ok {
		if old.ContentHash == contentHash {
			oc.skipped = true
			return oc, nil
		}
		oc.updated = true
	}

	oc.storeFile = &store.File{
		ID:          store.FileIDFor(file.Path),
		ProjectID:   projectID,
		Path:        file.Path,
		Size:        file.Size,
		ModTime:     file.ModTime,
		ContentHash: contentHash,
		Language:    file.Language,
		ContentType: string(file.ContentType),
		IndexedAt:   now,
	} // ChunkCount is filled in once chunking is done

	input := &chunk.FileInput{
		Path:     file.Path,
		Content:  content,
		Language: file.Language,
	}

	var chunks []*chunk.Chunk
	switch file.ContentType {
	case scanner.ContentTypeCode:
		chunks, err = o.codeChunker.Chunk(ctx, input)
	case scanner.ContentTypeMarkdown:
		chunks, err = o.markdownChunker.Chunk(ctx, input)
	default:
		chunks, err = o.textChunker.Chunk(ctx, input)
	}
	if err != nil {
		slog.Warn("chunking failed, skipping file", slog.String("file", file.Path), slog.String("error", err.Error()))
		chunks = nil
	}

	oc.chunks = make([]*store.Chunk, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		oc.chunks[i] = storeChunk(c, oc.storeFile, i, contentHash, now)
		contents[i] = c.Content
	}
	oc.storeFile.ChunkCount = len(chunks)

	if len(contents) > 0 {
		// cache lookups and provider batching happen inside the embedder
		oc.vectors, err = o.deps.Embedder.EmbedBatch(ctx, contents)
		if err != nil {
			// embedding failures are fatal for the run, per the error
			// taxonomy: the index gets marked failed by Run
			return nil, cierrors.ProviderError(cierrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embed %s", file.Path), err)
		}
	}

	if o.deps.Extractor != nil && file.ContentType == scanner.ContentTypeCode {
		oc.extraction = o.deps.Extractor.Extract(ctx, file.Path, file.AbsPath, content, file.Language)
	}

	return oc, nil
}

// storeChunk converts one chunker output to its stored row, stamping the
// provenance the incremental indexer depends on: the producing file's
// content hash and the chunk's 0-based position within that file.
func storeChunk(c *chunk.Chunk, file *store.File, index int, contentHash string, now time.Time) *store.Chunk {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	symbols := make([]*store.Symbol, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols = append(symbols, &store.Symbol{
			Name:       s.Name,
			Type:       store.SymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			Signature:  s.Signature,
			DocComment: s.DocComment,
		})
	}

	return &store.Chunk{
		ID:          c.ID,
		FileID:      file.ID,
		FilePath:    c.FilePath,
		ChunkIndex:  index,
		ContentHash: contentHash,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: store.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Symbols:     symbols,
		Metadata:    c.Metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}

// writeOutcomes applies the processed files to the stores in walk order.
// Per file: stale rows are removed first, chunks land before the file
// metadata upsert, and vectors are added under the chunk ids.
func (o *Orchestrator) writeOutcomes(ctx context.Context, cfg OrchestratorConfig, projectID string, outcomes []*fileOutcome, result *OrchestratorResult) error {
	dbBatch := cfg.DBBatchSize
	if dbBatch <= 0 {
		dbBatch = 100
	}

	// walked path set, for resolving relative import targets to files
	known := make(map[string]bool, len(outcomes))
	for _, oc := range outcomes {
		if oc != nil {
			known[oc.info.Path] = true
		}
	}

	for _, oc := range outcomes {
		if oc == nil {
			continue
		}
		result.FilesProcessed++

		if oc.skipped {
			result.FilesSkipped++
			continue
		}

		if oc.updated {
			if err := o.removeFileRecords(ctx, oc.info.Path); err != nil {
				return err
			}
			result.FilesUpdated++
		} else {
			result.FilesAdded++
		}

		// A provisional row (no hash yet) satisfies the chunks' foreign
		// key; the real upsert happens after the chunk writes, so a crash
		// mid-file never leaves a hash behind without its chunks.
		provisional := *oc.storeFile
		provisional.ContentHash = ""
		provisional.ChunkCount = 0
		if err := o.deps.Metadata.SaveFiles(ctx, []*store.File{&provisional}); err != nil {
			return cierrors.StoreError(fmt.Sprintf("save file %s", oc.info.Path), err)
		}

		ids := make([]string, len(oc.chunks))
		for start := 0; start < len(oc.chunks); start += dbBatch {
			end := start + dbBatch
			if end > len(oc.chunks) {
				end = len(oc.chunks)
			}
			if err := o.deps.Metadata.SaveChunks(ctx, oc.chunks[start:end]); err != nil {
				return cierrors.StoreError(fmt.Sprintf("save chunks for %s", oc.info.Path), err)
			}
		}
		for i, c := range oc.chunks {
			ids[i] = c.ID
		}
		if len(ids) > 0 {
			if err := o.deps.Metadata.SaveChunkEmbeddings(ctx, ids, oc.vectors, o.deps.Embedder.ModelName()); err != nil {
				return cierrors.StoreError(fmt.Sprintf("save embeddings for %s", oc.info.Path), err)
			}
			if err := o.deps.Vectors.Add(ctx, ids, oc.vectors); err != nil {
				return cierrors.StoreError(fmt.Sprintf("add vectors for %s", oc.info.Path), err)
			}
		}
		result.ChunksCreated += len(oc.chunks)

		// final upsert: the hash lands only after every chunk write
		if err := o.deps.Metadata.SaveFiles(ctx, []*store.File{oc.storeFile}); err != nil {
			return cierrors.StoreError(fmt.Sprintf("save file %s", oc.info.Path), err)
		}

		if oc.extraction != nil && o.deps.Graph != nil {
			for _, dep := range oc.extraction.Dependencies {
				if !dep.IsExternal && dep.ResolvedPath == "" {
					dep.ResolvedPath = graph.ResolveRelative(dep.SourceFile, dep.TargetModule, func(p string) bool { return known[p] })
				}
			}
			if err := o.deps.Graph.AddSymbols(ctx, oc.extraction.Symbols); err != nil {
				return cierrors.StoreError(fmt.Sprintf("store symbols for %s", oc.info.Path), err)
			}
			if err := o.deps.Graph.AddDependencies(ctx, oc.extraction.Dependencies); err != nil {
				return cierrors.StoreError(fmt.Sprintf("store dependencies for %s", oc.info.Path), err)
			}
			if err := o.deps.Graph.AddCalls(ctx, oc.extraction.Calls); err != nil {
				return cierrors.StoreError(fmt.Sprintf("store calls for %s", oc.info.Path), err)
			}
			result.SymbolsExtracted += len(oc.extraction.Symbols)
			result.DependenciesExtracted += len(oc.extraction.Dependencies)
			result.CallsExtracted += len(oc.extraction.Calls)
		}
	}
	return nil
}

// removeFileRecords deletes a file's chunks, vectors, metadata row, and
// graph rows. Chunk ids are collected before the cascade so the vector
// store can drop them too.
func (o *Orchestrator) removeFileRecords(ctx context.Context, relPath string) error {
	fileID := store.FileIDFor(relPath)

	chunks, err := o.deps.Metadata.GetChunksByFile(ctx, fileID)
	if err != nil {
		return cierrors.StoreError(fmt.Sprintf("list chunks for %s", relPath), err)
	}
	if len(chunks) > 0 {
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := o.deps.Vectors.Delete(ctx, ids); err != nil {
			return cierrors.StoreError(fmt.Sprintf("delete vectors for %s", relPath), err)
		}
	}

	if err := o.deps.Metadata.DeleteFile(ctx, fileID); err != nil {
		return cierrors.StoreError(fmt.Sprintf("delete file %s", relPath), err)
	}
	if o.deps.Graph != nil {
		if err := o.deps.Graph.DeleteByFile(ctx, relPath); err != nil {
			return cierrors.StoreError(fmt.Sprintf("delete graph rows for %s", relPath), err)
		}
	}
	return nil
}

// purge drops everything for retry mode: chunks, vectors, graph rows.
func (o *Orchestrator) purge(ctx context.Context, projectID string) error {
	if err := o.deps.Metadata.DeleteFilesByProject(ctx, projectID); err != nil {
		return cierrors.StoreError("purge file records", err)
	}
	if ids := o.deps.Vectors.AllIDs(); len(ids) > 0 {
		if err := o.deps.Vectors.Delete(ctx, ids); err != nil {
			return cierrors.StoreError("purge vectors", err)
		}
	}
	if o.deps.Graph != nil {
		if err := o.deps.Graph.ClearAll(ctx); err != nil {
			return cierrors.StoreError("purge graph", err)
		}
	}
	return nil
}

// summarize runs the optional symbol summarizer over this run's new
// symbols. Import/export symbols are skipped, as are symbols that already
// carry a summary unless Resummarize is set. Failures are logged and
// counted, never fatal.
func (o *Orchestrator) summarize(ctx context.Context, cfg OrchestratorConfig, result *OrchestratorResult, outcomes []*fileOutcome) {
	if o.deps.Summarizer == nil {
		result.SummarizationSkipped = true
		return
	}

	for _, oc := range outcomes {
		if oc == nil || oc.extraction == nil {
			continue
		}
		for _, sym := range oc.extraction.Symbols {
			if sym.Kind == graph.KindImport || sym.Kind == graph.KindExport {
				continue
			}
			if sym.Summary != "" && !cfg.Resummarize {
				continue
			}
			summary, err := o.deps.Summarizer.SummarizeSymbol(ctx, embed.SymbolInfo{
				Name:          sym.Name,
				Kind:          string(sym.Kind),
				Signature:     sym.Signature,
				Documentation: sym.Documentation,
			})
			if err != nil {
				slog.Warn("summarization failed", slog.String("symbol", sym.Name), slog.String("error", err.Error()))
				continue
			}
			if err := o.deps.Graph.UpdateSymbolSummary(ctx, sym.ID, summary, o.deps.Summarizer.Model()); err != nil {
				slog.Warn("store summary failed", slog.String("symbol", sym.Name), slog.String("error", err.Error()))
				continue
			}
			result.SymbolsSummarized++
		}
	}
}
