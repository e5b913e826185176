package config

const (
	defaultStorageProvider = "sqlite"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "quill_articles"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingMaxChars   = 8000

	defaultCacheProvider = "file"
	defaultCacheTTL      = "720h"

	defaultChunkMaxChars      = 6000
	defaultChunkOverlap       = 200
	defaultLongThreshold      = 20000
	defaultMinSections        = 3
	defaultMaxSections        = 8
	defaultSectionConcurrency = 4
	defaultChunkPause         = "500ms"
	defaultRecentLimit        = 5

	defaultIngestWorkers   = 3
	defaultIngestQueueSize = 256

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "quill.documents"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			MaxChars:   defaultEmbeddingMaxChars,
		},
		Cache: CacheConfig{
			Provider: defaultCacheProvider,
			TTL:      defaultCacheTTL,
		},
		Pipeline: PipelineConfig{
			ChunkMaxChars:      defaultChunkMaxChars,
			ChunkOverlap:       defaultChunkOverlap,
			LongThreshold:      defaultLongThreshold,
			MinSections:        defaultMinSections,
			MaxSections:        defaultMaxSections,
			SectionConcurrency: defaultSectionConcurrency,
			ChunkPause:         defaultChunkPause,
			RecentLimit:        defaultRecentLimit,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
