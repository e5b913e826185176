// Package stack wires configuration into the storage, vector, embedding and
// cache backends shared by every quill command that runs the pipeline.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/sqlitepath"
	"github.com/papercomputeco/quill/pkg/chunker"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/credentials"
	"github.com/papercomputeco/quill/pkg/dotdir"
	"github.com/papercomputeco/quill/pkg/embeddings"
	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/embeddings/cache/filestore"
	"github.com/papercomputeco/quill/pkg/embeddings/cache/sqlitestore"
	"github.com/papercomputeco/quill/pkg/embeddings/retry"
	embeddingutils "github.com/papercomputeco/quill/pkg/embeddings/utils"
	"github.com/papercomputeco/quill/pkg/eventstream"
	"github.com/papercomputeco/quill/pkg/eventstream/kafka"
	"github.com/papercomputeco/quill/pkg/eventstream/nop"
	"github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/rag"
	"github.com/papercomputeco/quill/pkg/storage"
	"github.com/papercomputeco/quill/pkg/storage/inmemory"
	"github.com/papercomputeco/quill/pkg/storage/postgres"
	"github.com/papercomputeco/quill/pkg/storage/sqlite"
	"github.com/papercomputeco/quill/pkg/vector"
	vectorutils "github.com/papercomputeco/quill/pkg/vector/utils"
)

// cacheDBFile is the SQLite embedding cache file inside the .quill directory.
const cacheDBFile = "cache.db"

// Stack is a fully wired pipeline with the backends it owns.
type Stack struct {
	Config   *config.Config
	Store    storage.Driver
	Pipeline *rag.Pipeline
	Cache    *cache.Cache
	Logger   *slog.Logger
}

// LoadConfig resolves the configuration for cmd: flags in the given sets,
// then QUILL_* environment variables, then config.toml, then defaults.
func LoadConfig(cmd *cobra.Command, sets ...config.FlagSet) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	for _, fs := range sets {
		config.BindRegisteredFlags(v, cmd, fs, fs.Keys())
	}

	return config.FromViper(v), nil
}

// NewLogger builds the command logger from the persistent --debug flag.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// New opens every backend named in cfg and builds the pipeline over them.
// On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (*Stack, error) {
	if log == nil {
		log = logger.Nop()
	}

	chunkPause, err := cfg.Pipeline.ChunkPauseDuration()
	if err != nil {
		return nil, err
	}

	store, err := NewStore(ctx, cfg, configDir, log)
	if err != nil {
		return nil, err
	}

	index, err := NewVectorDriver(ctx, cfg, configDir, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedder, err := NewEmbedder(cfg, configDir, log)
	if err != nil {
		index.Close()
		store.Close()
		return nil, err
	}

	c, err := NewCache(cfg, configDir, log)
	if err != nil {
		embedder.Close()
		index.Close()
		store.Close()
		return nil, err
	}

	pipeline, err := rag.NewPipeline(rag.Config{
		Store:    store,
		Index:    index,
		Embedder: embedder,
		Cache:    c,
		Chunker: chunker.New(
			chunker.WithMaxChars(ChunkMaxChars(cfg)),
			chunker.WithOverlap(cfg.Pipeline.ChunkOverlap),
		),
		LongThreshold:      cfg.Pipeline.LongThreshold,
		MinSections:        cfg.Pipeline.MinSections,
		MaxSections:        cfg.Pipeline.MaxSections,
		SectionConcurrency: cfg.Pipeline.SectionConcurrency,
		ChunkPause:         chunkPause,
		RecentLimit:        cfg.Pipeline.RecentLimit,
		Logger:             log,
	})
	if err != nil {
		if c != nil {
			c.Close()
		}
		embedder.Close()
		index.Close()
		store.Close()
		return nil, err
	}

	return &Stack{
		Config:   cfg,
		Store:    store,
		Pipeline: pipeline,
		Cache:    c,
		Logger:   log,
	}, nil
}

// Close releases the pipeline backends and the article store.
func (s *Stack) Close() error {
	return errors.Join(s.Pipeline.Close(), s.Store.Close())
}

// NewStore opens the primary article store.
func NewStore(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Provider {
	case "inmemory":
		log.Warn("using in-memory article store, nothing will be persisted")
		return inmemory.NewDriver(), nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres provider")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Debug("using postgres article store")
		return driver, nil

	case "", "sqlite":
		path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, configDir)
		if errors.Is(err, sqlitepath.ErrNotFound) {
			path, err = sqlitepath.DefaultSQLitePath(configDir)
		}
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewSQLiteDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		log.Debug("using sqlite article store", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}

// NewVectorDriver opens the vector index. The sqlite-vec file defaults to
// vectors.db inside the .quill directory.
func NewVectorDriver(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (vector.Driver, error) {
	vc := cfg.VectorStore

	sqlitePath := vc.SQLitePath
	if sqlitePath == "" && (vc.Provider == "" || vc.Provider == "sqlite" || vc.Provider == "sqlitevec") {
		dir, err := dotdir.NewManager().Ensure(configDir)
		if err != nil {
			return nil, err
		}
		sqlitePath = filepath.Join(dir, dotdir.VectorFile)
	}

	provider := vc.Provider
	if provider == "" {
		provider = "sqlite"
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: provider,
		TargetURL:    vc.Target,
		Collection:   vc.Collection,
		SQLitePath:   sqlitePath,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	log.Debug("using vector index", "provider", provider, "collection", vc.Collection)
	return driver, nil
}

// ChunkMaxChars returns the chunk bound for cfg: pipeline.chunk_max_chars,
// lowered to the embedding provider's limit so no chunk is truncated before
// it is embedded.
func ChunkMaxChars(cfg *config.Config) int {
	bound := chunker.MaxCharsFor(cfg.Embedding.MaxChars)
	if n := cfg.Pipeline.ChunkMaxChars; n > 0 {
		bound = min(bound, n)
	}
	return bound
}

// NewEmbedder creates the configured provider wrapped in the retry client.
func NewEmbedder(cfg *config.Config, configDir string, log *slog.Logger) (embeddings.Embedder, error) {
	ec := cfg.Embedding

	apiKey := ec.APIKey
	if apiKey == "" && credentials.IsSupportedProvider(ec.Provider) {
		mgr, err := credentials.NewManager(configDir)
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		if apiKey, err = mgr.ResolveKey(ec.Provider); err != nil {
			return nil, err
		}
	}

	raw, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: ec.Provider,
		TargetURL:    ec.Target,
		Model:        ec.Model,
		APIKey:       apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return retry.New(raw,
		retry.WithMaxChars(ec.MaxChars),
		retry.WithLogger(log),
	), nil
}

// NewCache opens the embedding cache. It returns a nil cache for the "none"
// provider.
func NewCache(cfg *config.Config, configDir string, log *slog.Logger) (*cache.Cache, error) {
	cc := cfg.Cache
	ttl, err := cc.TTLDuration()
	if err != nil {
		return nil, err
	}

	var store cache.Store
	switch cc.Provider {
	case "none":
		return nil, nil

	case "", "file":
		dir := cc.Dir
		if dir == "" {
			base, err := dotdir.NewManager().Ensure(configDir)
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(base, dotdir.CacheDir, "embeddings")
		}
		fs, err := filestore.New(dir)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		store = fs

	case "sqlite":
		path := cc.Dir
		if path == "" {
			base, err := dotdir.NewManager().Ensure(configDir)
			if err != nil {
				return nil, err
			}
			path = filepath.Join(base, cacheDBFile)
		}
		ss, err := sqlitestore.New(path)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		store = ss

	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cc.Provider)
	}

	return cache.New(store,
		cache.WithTTL(ttl),
		cache.WithLogger(log),
	), nil
}

// NewPublisher creates the document event publisher.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.BrokerList(),
			Topic:   cfg.EventStream.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing document events to kafka",
			"brokers", cfg.EventStream.Brokers,
			"topic", cfg.EventStream.Topic,
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", cfg.EventStream.Provider)
	}
}
