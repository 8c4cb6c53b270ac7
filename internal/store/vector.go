package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig sizes the HNSW graph behind a chunk-vector index.
type VectorStoreConfig struct {
	Dimensions int
	M          int // max connections per layer
	EfSearch   int // query-time search width
}

// DefaultVectorStoreConfig returns the graph parameters used unless a
// caller tunes them.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorIndex is the chunk-vector table: an in-memory HNSW graph keyed by
// chunk id, persisted as a graph export plus a JSON sidecar carrying the
// id mapping and dimension. Deletion is lazy: a deleted chunk id is
// unmapped immediately and its graph node is skipped at query time, which
// sidesteps graph-repair on every incremental update.
type VectorIndex struct {
	mu  sync.RWMutex
	cfg VectorStoreConfig

	graph   *hnsw.Graph[uint64]
	nextKey uint64
	keyByID map[string]uint64
	idByKey map[uint64]string
	closed  bool
}

var _ VectorStore = (*VectorIndex)(nil)

// NewVectorIndex creates an empty index for vectors of cfg.Dimensions.
func NewVectorIndex(cfg VectorStoreConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index needs a positive dimension, got %d", cfg.Dimensions)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch

	return &VectorIndex{
		cfg:     cfg,
		graph:   g,
		nextKey: 1,
		keyByID: make(map[string]uint64),
		idByKey: make(map[uint64]string),
	}, nil
}

// Add inserts vectors under their chunk ids. Re-adding an id replaces its
// vector: the old graph node is unmapped and a fresh node inserted.
func (v *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("id/vector count mismatch: %d != %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for i, id := range ids {
		vec := vectors[i]
		if len(vec) != v.cfg.Dimensions {
			return fmt.Errorf("chunk %s: vector has %d dimensions, index expects %d", id, len(vec), v.cfg.Dimensions)
		}
		if old, ok := v.keyByID[id]; ok {
			delete(v.idByKey, old)
		}
		key := v.nextKey
		v.nextKey++
		v.keyByID[id] = key
		v.idByKey[key] = id
		v.graph.Add(hnsw.MakeNode(key, unitVector(vec)))
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance, skipping nodes
// whose chunk was lazily deleted.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != v.cfg.Dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), v.cfg.Dimensions)
	}
	if k <= 0 {
		k = 10
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if v.graph.Len() == 0 {
		return nil, nil
	}

	q := unitVector(query)

	// over-fetch to cover nodes that only exist as lazy-deleted husks
	fetch := k + (v.graph.Len() - len(v.idByKey))
	nodes := v.graph.Search(q, fetch)

	out := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, live := v.idByKey[node.Key]
		if !live {
			continue
		}
		dist := v.graph.Distance(q, node.Value)
		out = append(out, &VectorResult{
			ID:       id,
			Distance: dist,
			Score:    1 - dist,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Delete unmaps chunk ids; their graph nodes stay behind as husks until
// the index is next rebuilt from scratch.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, id := range ids {
		if key, ok := v.keyByID[id]; ok {
			delete(v.keyByID, id)
			delete(v.idByKey, key)
		}
	}
	return nil
}

// AllIDs lists the live chunk ids.
func (v *VectorIndex) AllIDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.keyByID))
	for id := range v.keyByID {
		out = append(out, id)
	}
	return out
}

// Contains reports whether a chunk id is live.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.keyByID[id]
	return ok
}

// Count is the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keyByID)
}

// vectorSidecar is the JSON file written next to the graph export.
type vectorSidecar struct {
	Dimensions int               `json:"dimensions"`
	NextKey    uint64            `json:"nextKey"`
	KeyByID    map[string]uint64 `json:"keyById"`
}

func sidecarPath(path string) string {
	return path + ".meta.json"
}

// Save writes the graph export and sidecar atomically (temp then rename),
// so a crash mid-save leaves the previous files intact.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector export: %w", err)
	}
	if err := v.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export vector graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	side := vectorSidecar{
		Dimensions: v.cfg.Dimensions,
		NextKey:    v.nextKey,
		KeyByID:    v.keyByID,
	}
	raw, err := json.Marshal(side)
	if err != nil {
		return err
	}
	sideTmp := sidecarPath(path) + ".tmp"
	if err := os.WriteFile(sideTmp, raw, 0644); err != nil {
		return fmt.Errorf("write vector sidecar: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return os.Rename(sideTmp, sidecarPath(path))
}

// Load replaces the index contents from a prior Save.
func (v *VectorIndex) Load(path string) error {
	raw, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return fmt.Errorf("read vector sidecar: %w", err)
	}
	var side vectorSidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		return fmt.Errorf("parse vector sidecar: %w", err)
	}
	if side.Dimensions != v.cfg.Dimensions {
		return fmt.Errorf("vector index on disk has %d dimensions, want %d", side.Dimensions, v.cfg.Dimensions)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector export: %w", err)
	}
	defer f.Close()

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = v.cfg.M
	g.EfSearch = v.cfg.EfSearch
	// Import reads varints and needs an io.ByteReader
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import vector graph: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = g
	v.nextKey = side.NextKey
	v.keyByID = side.KeyByID
	v.idByKey = make(map[uint64]string, len(side.KeyByID))
	for id, key := range side.KeyByID {
		v.idByKey[key] = id
	}
	return nil
}

// Close drops the in-memory graph.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.graph = nil
	v.keyByID = nil
	v.idByKey = nil
	return nil
}

// ReadVectorIndexDimensions peeks at a saved index's dimension without
// loading the graph, so callers can size an embedder to match.
func ReadVectorIndexDimensions(path string) (int, error) {
	raw, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return 0, err
	}
	var side vectorSidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		return 0, err
	}
	return side.Dimensions, nil
}

// unitVector normalizes to unit length so cosine distance behaves.
func unitVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
