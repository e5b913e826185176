// Package statscmder provides the stats command.
package statscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/rag"
)

const statsLongDesc string = `Show counts for the local quill stack.

Prints the number of stored articles, vector index records and cached
embeddings along with the embedding model and backends in use.

Examples:
  quill stats`

const statsShortDesc string = "Show index, store and cache counts"

func NewStatsCmd() *cobra.Command {
	var (
		configDir string
		cfg       *config.Config
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ = cmd.Flags().GetString("config-dir")
			var err error
			cfg, err = stack.LoadConfig(cmd, config.CommonFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := stack.New(cmd.Context(), cfg, configDir, stack.NewLogger(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Pipeline.Stats(cmd.Context())
			if err != nil {
				return err
			}

			PrintStats(cmd.OutOrStdout(), cfg, stats)
			return nil
		},
	}

	config.AddFlags(cmd, config.CommonFlags)

	return cmd
}

// PrintStats renders stats with the backends named in cfg.
func PrintStats(w io.Writer, cfg *config.Config, stats *rag.Stats) {
	cacheEntries := strconv.Itoa(stats.CacheEntries)
	if stats.CacheEntries < 0 {
		cacheEntries = "disabled"
	}

	rows := [][2]string{
		{"articles", strconv.Itoa(stats.Articles)},
		{"vectors", strconv.Itoa(stats.Vectors)},
		{"cache entries", cacheEntries},
		{"model", stats.Model},
		{"article store", cfg.Storage.Provider},
		{"vector index", cfg.VectorStore.Provider},
		{"embedding cache", cfg.Cache.Provider},
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}

	fmt.Fprintln(w)
	for _, r := range rows {
		cliui.KeyValue(w, width, r[0], r[1])
	}
	fmt.Fprintln(w)
}
