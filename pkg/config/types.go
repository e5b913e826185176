package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent quill configuration stored as config.toml
// in the .quill/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Cache       CacheConfig       `toml:"cache"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Ingest      IngestConfig      `toml:"ingest"`
	EventStream EventStreamConfig `toml:"eventstream"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
}

// StorageConfig selects the article store.
type StorageConfig struct {
	// Provider is one of "sqlite", "postgres" or "inmemory".
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Provider is one of "sqlite", "chroma", "qdrant" or "inmemory".
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`

	// MaxChars is the provider's input limit in characters.
	MaxChars int `toml:"max_chars,omitempty"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	// Provider is one of "file", "sqlite" or "none".
	Provider string `toml:"provider,omitempty"`
	Dir      string `toml:"dir,omitempty"`

	// TTL is a Go duration string such as "720h".
	TTL string `toml:"ttl,omitempty"`
}

// PipelineConfig tunes chunking and the document embedder.
type PipelineConfig struct {
	ChunkMaxChars      int `toml:"chunk_max_chars,omitempty"`
	ChunkOverlap       int `toml:"chunk_overlap,omitempty"`
	LongThreshold      int `toml:"long_threshold,omitempty"`
	MinSections        int `toml:"min_sections,omitempty"`
	MaxSections        int `toml:"max_sections,omitempty"`
	SectionConcurrency int `toml:"section_concurrency,omitempty"`

	// ChunkPause is a Go duration string. "0s" disables pacing.
	ChunkPause  string `toml:"chunk_pause,omitempty"`
	RecentLimit int    `toml:"recent_limit,omitempty"`
}

// IngestConfig sizes the background indexing pool used by the API server.
type IngestConfig struct {
	Workers   int `toml:"workers,omitempty"`
	QueueSize int `toml:"queue_size,omitempty"`
}

// EventStreamConfig selects where document-indexed events are published.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into its host:port entries.
func (e EventStreamConfig) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// quill API server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if d < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider":     stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":  stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.sqlite_path": stringKey(func(c *Config) *string { return &c.VectorStore.SQLitePath }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.api_key":   stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.max_chars": intKey("embedding.max_chars", func(c *Config) *int { return &c.Embedding.MaxChars }),

	"cache.provider": stringKey(func(c *Config) *string { return &c.Cache.Provider }),
	"cache.dir":      stringKey(func(c *Config) *string { return &c.Cache.Dir }),
	"cache.ttl":      durationKey("cache.ttl", func(c *Config) *string { return &c.Cache.TTL }),

	"pipeline.chunk_max_chars":     intKey("pipeline.chunk_max_chars", func(c *Config) *int { return &c.Pipeline.ChunkMaxChars }),
	"pipeline.chunk_overlap":       intKey("pipeline.chunk_overlap", func(c *Config) *int { return &c.Pipeline.ChunkOverlap }),
	"pipeline.long_threshold":      intKey("pipeline.long_threshold", func(c *Config) *int { return &c.Pipeline.LongThreshold }),
	"pipeline.min_sections":        intKey("pipeline.min_sections", func(c *Config) *int { return &c.Pipeline.MinSections }),
	"pipeline.max_sections":        intKey("pipeline.max_sections", func(c *Config) *int { return &c.Pipeline.MaxSections }),
	"pipeline.section_concurrency": intKey("pipeline.section_concurrency", func(c *Config) *int { return &c.Pipeline.SectionConcurrency }),
	"pipeline.chunk_pause":         durationKey("pipeline.chunk_pause", func(c *Config) *string { return &c.Pipeline.ChunkPause }),
	"pipeline.recent_limit":        intKey("pipeline.recent_limit", func(c *Config) *int { return &c.Pipeline.RecentLimit }),

	"ingest.workers":    intKey("ingest.workers", func(c *Config) *int { return &c.Ingest.Workers }),
	"ingest.queue_size": intKey("ingest.queue_size", func(c *Config) *int { return &c.Ingest.QueueSize }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
}

// TTLDuration parses TTL. An empty TTL yields zero.
func (c CacheConfig) TTLDuration() (time.Duration, error) {
	return parseDuration("cache.ttl", c.TTL)
}

// ChunkPauseDuration parses ChunkPause. An empty value yields zero.
func (p PipelineConfig) ChunkPauseDuration() (time.Duration, error) {
	return parseDuration("pipeline.chunk_pause", p.ChunkPause)
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return d, nil
}
