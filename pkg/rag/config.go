package rag

import (
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/quill/pkg/chunker"
	"github.com/papercomputeco/quill/pkg/embeddings"
	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/storage"
	"github.com/papercomputeco/quill/pkg/vector"
)

const (
	// DefaultLongThreshold is the length, in characters, above which an
	// article is decomposed into sections.
	DefaultLongThreshold = 20000

	// DefaultMinSections and DefaultMaxSections bound the number of sections
	// produced for a long article.
	DefaultMinSections = 3
	DefaultMaxSections = 8

	// DefaultSectionConcurrency bounds concurrent section embeddings.
	DefaultSectionConcurrency = 4

	// DefaultChunkPause is the minimum spacing between provider calls made
	// while embedding the chunks of one article.
	DefaultChunkPause = 500 * time.Millisecond

	// DefaultRecentLimit is the number of recent articles returned when a
	// query falls back to non-semantic results.
	DefaultRecentLimit = 5

	// DefaultTopK is the number of results returned when a query asks for
	// none.
	DefaultTopK = 5

	// MaxSectionMatches caps the sections reported per consolidated result.
	MaxSectionMatches = 3
)

// Config configures a Pipeline. Store, Index and Embedder are required.
type Config struct {
	// Store is the primary record store articles are read from.
	Store storage.Driver

	// Index is the vector index the pipeline owns.
	Index vector.Driver

	// Embedder produces vectors. It is expected to already carry the retry
	// and timeout policy (see retry.New).
	Embedder embeddings.Embedder

	// Cache is the optional embedding cache consulted before Embedder.
	Cache *cache.Cache

	// Chunker splits text for embedding. Defaults to chunker.New().
	Chunker *chunker.Chunker

	LongThreshold      int
	MinSections        int
	MaxSections        int
	SectionConcurrency int
	ChunkPause         time.Duration
	RecentLimit        int

	Logger *slog.Logger
}

func (c *Config) validate() error {
	switch {
	case c.Store == nil:
		return errors.New("rag: store is required")
	case c.Index == nil:
		return errors.New("rag: vector index is required")
	case c.Embedder == nil:
		return errors.New("rag: embedder is required")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Chunker == nil {
		c.Chunker = chunker.New()
	}
	if c.LongThreshold <= 0 {
		c.LongThreshold = DefaultLongThreshold
	}
	if c.MinSections <= 0 {
		c.MinSections = DefaultMinSections
	}
	if c.MaxSections <= 0 {
		c.MaxSections = DefaultMaxSections
	}
	if c.MaxSections < c.MinSections {
		c.MaxSections = c.MinSections
	}
	if c.SectionConcurrency <= 0 {
		c.SectionConcurrency = DefaultSectionConcurrency
	}
	if c.ChunkPause < 0 {
		c.ChunkPause = 0
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = DefaultRecentLimit
	}
}
