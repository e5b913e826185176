package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on "quill serve", "quill index" and "quill search").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagAPITarget       = "api-target"
	FlagStorageProvider = "storage-provider"
	FlagSQLite          = "sqlite"
	FlagPostgresDSN     = "postgres-dsn"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagCollection      = "collection"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagCacheProvider   = "cache-provider"
	FlagCacheDir        = "cache-dir"
	FlagChunkPause      = "chunk-pause"
	FlagIngestWorkers   = "workers"
	FlagEventProvider   = "eventstream-provider"
	FlagEventBrokers    = "eventstream-brokers"
	FlagEventTopic      = "eventstream-topic"
)

// CommonFlags are the storage, vector store, embedding and cache flags
// shared by every command that builds a pipeline.
var CommonFlags = FlagSet{
	FlagStorageProvider: {Name: "storage-provider", ViperKey: "storage.provider", Description: "Article store (sqlite, postgres, inmemory)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite article database"},
	FlagPostgresDSN:     {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "Postgres connection string"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector index (sqlite, chroma, qdrant, inmemory)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector index URL or host:port"},
	FlagCollection:      {Name: "collection", ViperKey: "vector_store.collection", Description: "Vector index collection name"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, voyage)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
	FlagCacheProvider:   {Name: "cache-provider", ViperKey: "cache.provider", Description: "Embedding cache (file, sqlite, none)"},
	FlagCacheDir:        {Name: "cache-dir", ViperKey: "cache.dir", Description: "Embedding cache location"},
	FlagChunkPause:      {Name: "chunk-pause", ViperKey: "pipeline.chunk_pause", Description: "Pause between chunk embedding calls (0s disables)"},
}

// ServeFlags are the flags specific to "quill serve".
var ServeFlags = FlagSet{
	FlagAPIListen:     {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagIngestWorkers: {Name: "workers", ViperKey: "ingest.workers", Description: "Number of background indexing workers"},
	FlagEventProvider: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Event publisher (nop, kafka)"},
	FlagEventBrokers:  {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventTopic:    {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for document events"},
}

// ClientFlags are the flags for commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "quill API server URL"},
}

// Keys returns the registry keys of fs.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

// AddFlags registers every flag in fs on cmd, choosing the flag type from
// the viper default of its key.
func AddFlags(cmd *cobra.Command, fs FlagSet) {
	for key, def := range fs {
		switch defaultValue(def.ViperKey).(type) {
		case uint:
			AddUintFlag(cmd, fs, key, new(uint))
		case int:
			AddIntFlag(cmd, fs, key, new(int))
		default:
			AddStringFlag(cmd, fs, key, new(string))
		}
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}

func defaultValue(viperKey string) any {
	v := viper.New()
	setViperDefaults(v)
	return v.Get(viperKey)
}
