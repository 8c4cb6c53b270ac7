package embed

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// embeddingsBucket is the single bbolt bucket holding all cached vectors.
var embeddingsBucket = []byte("embeddings")

// DiskCache is a persistent, content-addressed embedding cache. Entries are
// keyed by (model, content hash) and survive index deletion and rebuilds:
// the cache file lives under the tool home, not under any index directory.
//
// A single process owns the cache file at a time (bbolt takes an exclusive
// flock on open), which matches the indexer's single-writer model.
type DiskCache struct {
	db   *bolt.DB
	path string
}

// DiskCacheStats reports cache size for the stats operation.
type DiskCacheStats struct {
	Entries   int
	SizeBytes int64
}

// OpenDiskCache opens (creating if needed) the cache file at path.
func OpenDiskCache(path string) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(embeddingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	return &DiskCache{db: db, path: path}, nil
}

// cacheEntryKey builds the bucket key for (model, content). The content is
// hashed so arbitrary chunk text yields a fixed-size key; the model id is
// kept in the clear so entries for different models never collide and a
// model's entries are greppable with the bbolt CLI when debugging.
func cacheEntryKey(model, contentHash string) []byte {
	return []byte(model + "\x00" + contentHash)
}

// Get returns the cached vector for (model, contentHash), or false.
func (c *DiskCache) Get(model, contentHash string) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(embeddingsBucket).Get(cacheEntryKey(model, contentHash))
		if raw == nil {
			return nil
		}
		vec = decodeVector(raw)
		return nil
	})
	if err != nil || vec == nil {
		return nil, false
	}
	return vec, true
}

// Put stores a vector for (model, contentHash).
func (c *DiskCache) Put(model, contentHash string, vec []float32) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(embeddingsBucket).Put(cacheEntryKey(model, contentHash), encodeVector(vec))
	})
}

// PutBatch stores several vectors in one transaction. The two slices must
// have equal length; pairs are matched by position.
func (c *DiskCache) PutBatch(model string, contentHashes []string, vecs [][]float32) error {
	if len(contentHashes) != len(vecs) {
		return fmt.Errorf("hash/vector count mismatch: %d != %d", len(contentHashes), len(vecs))
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(embeddingsBucket)
		for i, h := range contentHashes {
			if err := b.Put(cacheEntryKey(model, h), encodeVector(vecs[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats returns entry count and on-disk size.
func (c *DiskCache) Stats() (DiskCacheStats, error) {
	var stats DiskCacheStats
	err := c.db.View(func(tx *bolt.Tx) error {
		stats.Entries = tx.Bucket(embeddingsBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return stats, err
	}
	if fi, err := os.Stat(c.path); err == nil {
		stats.SizeBytes = fi.Size()
	}
	return stats, nil
}

// Clear removes every entry. The file itself is kept.
func (c *DiskCache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(embeddingsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(embeddingsBucket)
		return err
	})
}

// Close releases the cache file and its lock.
func (c *DiskCache) Close() error {
	return c.db.Close()
}

// encodeVector packs a vector as little-endian float32 bits, the same
// layout the metadata store uses for chunk embeddings.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
