package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/quill/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the QUILL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (QUILL_API_LISTEN, QUILL_EMBEDDING_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: QUILL_API_LISTEN, QUILL_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.sqlite_path", d.VectorStore.SQLitePath)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.max_chars", d.Embedding.MaxChars)

	// Cache
	v.SetDefault("cache.provider", d.Cache.Provider)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	// Pipeline
	v.SetDefault("pipeline.chunk_max_chars", d.Pipeline.ChunkMaxChars)
	v.SetDefault("pipeline.chunk_overlap", d.Pipeline.ChunkOverlap)
	v.SetDefault("pipeline.long_threshold", d.Pipeline.LongThreshold)
	v.SetDefault("pipeline.min_sections", d.Pipeline.MinSections)
	v.SetDefault("pipeline.max_sections", d.Pipeline.MaxSections)
	v.SetDefault("pipeline.section_concurrency", d.Pipeline.SectionConcurrency)
	v.SetDefault("pipeline.chunk_pause", d.Pipeline.ChunkPause)
	v.SetDefault("pipeline.recent_limit", d.Pipeline.RecentLimit)

	// Ingest
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.queue_size", d.Ingest.QueueSize)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}

// FromViper materializes a Config from the resolved viper values so that
// flags and environment variables are reflected.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
			SQLitePath: v.GetString("vector_store.sqlite_path"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
			APIKey:     v.GetString("embedding.api_key"),
			MaxChars:   v.GetInt("embedding.max_chars"),
		},
		Cache: CacheConfig{
			Provider: v.GetString("cache.provider"),
			Dir:      v.GetString("cache.dir"),
			TTL:      v.GetString("cache.ttl"),
		},
		Pipeline: PipelineConfig{
			ChunkMaxChars:      v.GetInt("pipeline.chunk_max_chars"),
			ChunkOverlap:       v.GetInt("pipeline.chunk_overlap"),
			LongThreshold:      v.GetInt("pipeline.long_threshold"),
			MinSections:        v.GetInt("pipeline.min_sections"),
			MaxSections:        v.GetInt("pipeline.max_sections"),
			SectionConcurrency: v.GetInt("pipeline.section_concurrency"),
			ChunkPause:         v.GetString("pipeline.chunk_pause"),
			RecentLimit:        v.GetInt("pipeline.recent_limit"),
		},
		Ingest: IngestConfig{
			Workers:   v.GetInt("ingest.workers"),
			QueueSize: v.GetInt("ingest.queue_size"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}
