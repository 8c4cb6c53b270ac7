// Package store persists everything an index owns: chunk rows and file
// metadata in SQLite, chunk vectors in an HNSW index with a JSON sidecar,
// the code-graph tables, and the meta.json lifecycle sidecar.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ProjectIDFor derives a project's id from its absolute root path.
func ProjectIDFor(rootPath string) string {
	return shortHash(rootPath)
}

// FileIDFor derives a file's id from its repo-relative path.
func FileIDFor(relPath string) string {
	return shortHash(relPath)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentType mirrors the chunker's classification on stored rows.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// SymbolType classifies a chunk-level symbol row.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeMethod    SymbolType = "method"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeVariable  SymbolType = "variable"
)

// Symbol is the chunk-level symbol annotation stored alongside a chunk.
// The code graph's symbol table is separate and richer; this one exists so
// search results can name what a chunk holds without a graph lookup.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Chunk is one stored segment of a file, the unit of vector search.
type Chunk struct {
	ID          string // content-addressed
	FileID      string
	FilePath    string // relative to the project root
	ChunkIndex  int    // 0-based position within the file
	ContentHash string // hash of the source file that produced this chunk
	Content     string
	RawContent  string
	Context     string
	ContentType ContentType
	Language    string
	StartLine   int
	EndLine     int
	Symbols     []*Symbol
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// File is one tracked file's metadata row: the change-detection record the
// incremental indexer diffs against.
type File struct {
	ID          string // derived from the relative path
	ProjectID   string
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string // hash of the file bytes at indexing time
	ChunkCount  int
	Language    string
	ContentType string
	IndexedAt   time.Time
}

// Project is the root-level record one index hangs off.
type Project struct {
	ID         string // derived from the absolute root path
	Name       string
	RootPath   string
	ChunkCount int
	FileCount  int
	IndexedAt  time.Time
	Version    string
}

// CurrentSchemaVersion is written to new metadata databases. Opening a
// database does not compare its recorded version against this one.
const CurrentSchemaVersion = 3

// MetadataStore is the SQLite-backed chunk/file/project persistence.
type MetadataStore interface {
	// projects
	SaveProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	RefreshProjectStats(ctx context.Context, id string) error

	// files: the upsert for a file happens after all that file's chunks
	// are written, so a reader never sees a hash without its chunks
	SaveFiles(ctx context.Context, files []*File) error
	GetFileByPath(ctx context.Context, projectID, path string) (*File, error)
	GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error)
	DeleteFile(ctx context.Context, fileID string) error
	DeleteFilesByProject(ctx context.Context, projectID string) error

	// chunks
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID string) error
	CountChunks(ctx context.Context, projectID string) (int, error)

	// embeddings ride on chunk rows so a vector index can be rebuilt
	// without re-embedding
	SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error
	GetAllEmbeddings(ctx context.Context) (map[string][]float32, error)

	// state is a small key-value table for index-level facts
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// State keys the indexer records.
const (
	StateKeyIndexModel     = "index_embedding_model"
	StateKeyIndexDimension = "index_embedding_dimension"
)

// VectorResult is one vector-search hit. Distance is cosine distance
// (smaller is closer); Score is 1 − distance.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStore is the chunk-vector index: ids are chunk ids, every vector
// shares the index's dimension, and search returns cosine-distance order.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}
