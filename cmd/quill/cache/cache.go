// Package cachecmder provides the cache command for inspecting and pruning
// the local embedding cache.
package cachecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/embeddings/cache"
)

// errCacheDisabled is returned when cache.provider is "none".
var errCacheDisabled = errors.New("embedding cache is disabled (cache.provider = none)")

var cacheFlags = config.FlagSet{
	config.FlagCacheProvider: config.CommonFlags[config.FlagCacheProvider],
	config.FlagCacheDir:      config.CommonFlags[config.FlagCacheDir],
}

const cacheLongDesc string = `Inspect and prune the embedding cache.

Embeddings are cached by the hash of their text and model so that
re-indexing unchanged articles makes no provider calls. Entries expire after
cache.ttl; expired entries are ignored on read and removed by
"quill cache clean".

Examples:
  quill cache stats
  quill cache clean
  quill cache clean --max-age 24h`

const cacheShortDesc string = "Inspect and prune the embedding cache"

func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: cacheShortDesc,
		Long:  cacheLongDesc,
	}

	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

func openCache(cmd *cobra.Command) (*cache.Cache, *config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := stack.LoadConfig(cmd, cacheFlags)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	c, err := stack.NewCache(cfg, configDir, stack.NewLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, errCacheDisabled
	}
	return c, cfg, nil
}

func newCleanCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired and corrupt cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			return Clean(cmd.Context(), cmd.OutOrStdout(), c, maxAge)
		},
	}

	config.AddFlags(cmd, cacheFlags)
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove entries older than this (default: cache.ttl)")

	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show embedding cache counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			return Stats(cmd.Context(), cmd.OutOrStdout(), c, cfg.Cache.Provider)
		},
	}

	config.AddFlags(cmd, cacheFlags)

	return cmd
}

// Clean removes entries older than maxAge (the cache TTL when zero) and
// prints how many were removed.
func Clean(ctx context.Context, w io.Writer, c *cache.Cache, maxAge time.Duration) error {
	var removed int
	err := cliui.Step(w, "Cleaning embedding cache", func() error {
		var err error
		removed, err = c.Clean(ctx, maxAge)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d entries removed", removed)))
	return nil
}

// Stats prints the entry count and TTL of c.
func Stats(ctx context.Context, w io.Writer, c *cache.Cache, provider string) error {
	n, err := c.Len(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	cliui.KeyValue(w, 8, "provider", provider)
	cliui.KeyValue(w, 8, "entries", strconv.Itoa(n))
	cliui.KeyValue(w, 8, "ttl", c.TTL().String())
	fmt.Fprintln(w)
	return nil
}
