package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/rerank"
	"github.com/codeintel/codeintel/internal/store"
)

// Engine wires the embedder, vector index, and chunk metadata into one
// query path. It owns none of its stores; the caller opens and closes them.
type Engine struct {
	vector   store.VectorStore
	embedder embed.Embedder
	metadata store.MetadataStore
	reranker *rerank.MMR
	cfg      EngineConfig
}

// NewEngine validates the dependencies and returns an Engine.
func NewEngine(vector store.VectorStore, embedder embed.Embedder, metadata store.MetadataStore, cfg EngineConfig) (*Engine, error) {
	if vector == nil || embedder == nil || metadata == nil {
		return nil, fmt.Errorf("search engine needs vector index, embedder, and metadata store")
	}
	if cfg.DefaultLimit <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		reranker: rerank.NewMMR(),
		cfg:      cfg,
	}, nil
}

// Search runs one query end to end: embed, nearest-neighbor, MMR, filter.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	opts = e.withDefaults(opts)
	if *opts.Diversity < 0 || *opts.Diversity > 1 {
		return nil, fmt.Errorf("diversity %v is outside [0,1]", *opts.Diversity)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// over-fetch so post-rerank filtering can still fill the limit
	hits, err := e.vector.Search(ctx, queryVec, opts.Limit*4)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	chunkByID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	candidates, err := e.buildCandidates(ctx, hits, chunkByID)
	if err != nil {
		return nil, err
	}

	reranked, err := e.reranker.Rerank(ctx, queryVec, candidates, *opts.Diversity)
	if err != nil {
		return nil, err
	}

	results := make([]*SearchResult, 0, opts.Limit)
	for _, cand := range reranked {
		c := chunkByID[cand.ID]
		if c == nil || !matchesFilters(c, opts) {
			continue
		}
		results = append(results, &SearchResult{
			Chunk:    c,
			Score:    1 - float64(cand.Distance),
			Distance: cand.Distance,
		})
		if len(results) == opts.Limit {
			break
		}
	}
	return results, nil
}

// buildCandidates attaches a vector to each hit for MMR's diversity term.
// The vector index has no by-id readback, so candidate chunk contents are
// re-embedded in one batched call; the disk cache makes repeats cheap.
func (e *Engine) buildCandidates(ctx context.Context, hits []*store.VectorResult, chunkByID map[string]*store.Chunk) ([]rerank.Candidate, error) {
	texts := make([]string, 0, len(hits))
	kept := make([]*store.VectorResult, 0, len(hits))
	for _, h := range hits {
		c := chunkByID[h.ID]
		if c == nil {
			continue
		}
		texts = append(texts, c.Content)
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}

	out := make([]rerank.Candidate, len(kept))
	for i, h := range kept {
		out[i] = rerank.Candidate{ID: h.ID, Vector: vecs[i], Distance: h.Distance}
	}
	return out, nil
}

func (e *Engine) withDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.DefaultLimit
	}
	if opts.Limit > e.cfg.MaxLimit {
		opts.Limit = e.cfg.MaxLimit
	}
	if opts.Diversity == nil {
		d := e.cfg.DefaultDiversity
		opts.Diversity = &d
	}
	if opts.Filter == "" {
		opts.Filter = "all"
	}
	return opts
}

// matchesFilters applies the content-class, language, and scope filters.
func matchesFilters(c *store.Chunk, opts SearchOptions) bool {
	switch opts.Filter {
	case "code":
		if c.ContentType != store.ContentTypeCode {
			return false
		}
	case "docs":
		if c.ContentType != store.ContentTypeMarkdown {
			return false
		}
	}
	if opts.Language != "" && c.Language != opts.Language {
		return false
	}
	if len(opts.Scopes) > 0 {
		inScope := false
		for _, scope := range opts.Scopes {
			if strings.HasPrefix(c.FilePath, strings.TrimSuffix(scope, "/")+"/") || c.FilePath == strings.TrimSuffix(scope, "/") {
				inScope = true
				break
			}
		}
		if !inScope {
			return false
		}
	}
	return true
}

// Stats reports the live vector count and model.
func (e *Engine) Stats() *EngineStats {
	return &EngineStats{
		VectorCount: e.vector.Count(),
		Model:       e.embedder.ModelName(),
	}
}

// Close is a no-op: the engine borrows its stores.
func (e *Engine) Close() error {
	return nil
}
