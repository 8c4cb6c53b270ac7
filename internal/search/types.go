// Package search answers semantic queries: embed the query text, pull the
// nearest chunks from the vector index, diversify the candidate list with
// MMR, then apply the caller's filters.
package search

import (
	"time"

	"github.com/codeintel/codeintel/internal/store"
)

// SearchOptions shapes one query.
type SearchOptions struct {
	// Limit caps returned results; zero takes the engine default.
	Limit int

	// Filter restricts by content class: "all", "code", or "docs".
	Filter string

	// Language restricts to one detected language.
	Language string

	// Scopes restricts to files under any of these path prefixes.
	Scopes []string

	// Diversity is the MMR lambda in [0,1]; nil takes the engine
	// default. 1 keeps pure similarity order, an explicit 0 maximizes
	// spread.
	Diversity *float64
}

// SearchResult is one returned chunk with its similarity.
type SearchResult struct {
	Chunk *store.Chunk

	// Score is 1 − Distance after reranking.
	Score float64

	// Distance is the raw cosine distance the vector index reported.
	Distance float32
}

// EngineStats summarizes the engine's live state.
type EngineStats struct {
	VectorCount int
	Model       string
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	DefaultLimit     int
	MaxLimit         int
	DefaultDiversity float64
	SearchTimeout    time.Duration
}

// DefaultConfig is the configuration used unless a caller overrides it.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:     10,
		MaxLimit:         100,
		DefaultDiversity: 0.7,
		SearchTimeout:    5 * time.Second,
	}
}
