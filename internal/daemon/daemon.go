package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeintel/codeintel/internal/config"
	"github.com/codeintel/codeintel/internal/embed"
	"github.com/codeintel/codeintel/internal/search"
	"github.com/codeintel/codeintel/internal/store"
)

// projectState is one loaded project's resident stores. The daemon keeps
// up to Config.MaxProjects of these hot, evicting the least-recently-used
// one. A project's code graph is loaded once into a graphView and served
// from memory; only vector search goes back to the store.
type projectState struct {
	rootPath string

	engine   *search.Engine
	metadata store.MetadataStore
	vector   store.VectorStore
	view     *graphView

	loadedAt time.Time
	lastUsed time.Time
}

// Close releases every store held by the project. Nil stores (as in a
// partially-constructed projectState used only for LRU bookkeeping in
// tests) are skipped rather than panicking.
func (p *projectState) Close() error {
	var errs []error
	if p.metadata != nil {
		if err := p.metadata.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.vector != nil {
		if err := p.vector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("closing project %s: %v", p.rootPath, errs)
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithEmbedder overrides the embedder the daemon uses for every project it
// loads. Tests use this to inject a deterministic mock embedder instead of
// reaching out to Ollama.
func WithEmbedder(e embed.Embedder) Option {
	return func(d *Daemon) {
		d.embedder = e
	}
}

// Daemon is the resident query process: it holds
// an LRU set of loaded project stores in memory and answers line-delimited
// JSON-RPC requests over a Unix socket.
type Daemon struct {
	cfg      Config
	embedder embed.Embedder

	mu       sync.Mutex
	projects map[string]*projectState

	server  *Server
	pidFile *PIDFile
	started time.Time
}

// NewDaemon validates cfg and constructs a Daemon. It does not start
// listening; call Start for that.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		projects: make(map[string]*projectState),
		pidFile:  NewPIDFile(cfg.PIDPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start brings up the PID file, the Unix socket listener, and blocks
// serving requests until ctx is cancelled. On return every project store
// and the embedder are released.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	// a stale PID file (process no longer alive) is removed lazily here
	if d.pidFile.Exists() && !d.pidFile.IsRunning() {
		_ = d.pidFile.Remove()
	}
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return err
	}
	server.SetHandler(d)
	d.server = server
	d.started = time.Now()

	defer d.cleanup()

	return server.ListenAndServe(ctx)
}

// cleanup closes every loaded project and releases the shared embedder.
// Called once on daemon shutdown, after in-flight responses have drained
// and the socket file is gone.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, p := range d.projects {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close project", slog.String("root", path), slog.String("error", err.Error()))
		}
	}
	d.projects = make(map[string]*projectState)

	if d.embedder != nil {
		_ = d.embedder.Close()
		d.embedder = nil
	}
}

// evictLRU removes the least-recently-used project once the loaded set
// exceeds MaxProjects. Caller must hold d.mu.
func (d *Daemon) evictLRU() {
	if len(d.projects) == 0 {
		return
	}
	var oldestPath string
	var oldestTime time.Time
	first := true
	for path, p := range d.projects {
		if first || p.lastUsed.Before(oldestTime) {
			oldestPath = path
			oldestTime = p.lastUsed
			first = false
		}
	}
	if p, ok := d.projects[oldestPath]; ok {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close evicted project", slog.String("root", oldestPath), slog.String("error", err.Error()))
		}
		delete(d.projects, oldestPath)
	}
}

// loadProject opens (or returns the already-resident) stores for root,
// evicting the LRU project first if the daemon is at MaxProjects capacity.
func (d *Daemon) loadProject(ctx context.Context, root string) (*projectState, error) {
	d.mu.Lock()
	if p, ok := d.projects[root]; ok {
		p.lastUsed = time.Now()
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	dataDir := filepath.Join(root, ".codeintel")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no index found for %s", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	embedder := d.embedder
	if embedder == nil {
		embedder, err = embed.NewDefaultEmbedder(ctx)
		if err != nil {
			_ = metadata.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}

	vectorConfig := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewVectorIndex(vectorConfig)
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vector.Load(vectorPath); err != nil {
			slog.Warn("failed to load vector store", slog.String("error", err.Error()))
		}
	}

	// The graph is read once into memory and the store closed again: the
	// query methods serve the snapshot, never live SQL.
	var view *graphView
	if graphStore, err := store.NewSQLiteGraphStore(filepath.Join(dataDir, "graph.db")); err != nil {
		slog.Warn("failed to open graph store, code-graph queries disabled", slog.String("error", err.Error()))
	} else {
		if view, err = newGraphView(ctx, graphStore); err != nil {
			slog.Warn("failed to load code graph, code-graph queries disabled", slog.String("error", err.Error()))
			view = nil
		}
		_ = graphStore.Close()
	}

	engineConfig := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		engineConfig.DefaultLimit = cfg.Search.MaxResults
	}
	engine, err := search.NewEngine(vector, embedder, metadata, engineConfig)
	if err != nil {
		_ = metadata.Close()
		_ = vector.Close()
		return nil, fmt.Errorf("create search engine: %w", err)
	}

	p := &projectState{
		rootPath: root,
		engine:   engine,
		metadata: metadata,
		vector:   vector,
		view:     view,
		loadedAt: time.Now(),
		lastUsed: time.Now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.projects[root]; ok {
		// Another goroutine loaded it while we were working; keep theirs.
		_ = p.Close()
		existing.lastUsed = time.Now()
		return existing, nil
	}
	if len(d.projects) >= d.cfg.MaxProjects {
		d.evictLRU()
	}
	d.projects[root] = p
	return p, nil
}

// HandleSearch implements RequestHandler's search method: embed the query,
// search the project's vector store, and diversify the candidate list with
// MMR reranking (internal/rerank, via the project's search.Engine).
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	p, err := d.loadProject(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	opts := search.SearchOptions{
		Limit:     params.Limit,
		Filter:    params.Filter,
		Language:  params.Language,
		Scopes:    params.Scopes,
		Diversity: params.Diversity,
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	results, err := p.engine.Search(ctx, params.Query, opts)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		out = append(out, SearchResult{
			FilePath:  r.Chunk.FilePath,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Score:     r.Score,
			Content:   r.Chunk.Content,
			Language:  r.Chunk.Language,
		})
	}
	return out, nil
}

// GetStatus implements RequestHandler's status method.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.Lock()
	loaded := len(d.projects)
	d.mu.Unlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		EmbedderType:   "unavailable",
		EmbedderStatus: "unavailable",
		ProjectsLoaded: loaded,
	}
	if d.embedder != nil {
		status.EmbedderType = d.embedder.ModelName()
		status.EmbedderStatus = "ready"
	}
	return status
}
