// Package initcmder provides the init command for initializing a local .quill
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/dotdir"
)

const remoteFetchTimeout = 10 * time.Second

const initLongDesc string = `Initialize a new .quill/ directory in the current working directory.

Creates a local .quill/ directory that takes precedence over the default
~/.quill/ directory for the article database, vector index, embedding cache
and configuration. A config.toml is written with default values unless one
already exists.

Use --preset to start from a named preset or a remote config.toml:
  local    ollama embeddings, SQLite articles, sqlite-vec index (default)
  voyage   Voyage AI embeddings, SQLite articles, sqlite-vec index
  server   ollama embeddings, Postgres articles, Qdrant index, Kafka events

A preset always overwrites an existing config.toml.

Examples:
  quill init
  quill init --preset voyage
  quill init --preset https://example.com/quill/config.toml`

const initShortDesc string = "Initialize a local .quill/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Config preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer, configDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dir := configDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dotdir.DirName)
	}

	_, statErr := os.Stat(dir)
	existed := statErr == nil

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .quill directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, err = os.Stat(cfger.GetTarget())
	configExists := err == nil

	switch {
	case c.preset != "":
		cfg, err := c.presetConfig(ctx)
		if err != nil {
			return err
		}
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s Wrote %s preset to %s\n", cliui.SuccessMark, c.preset, cfger.GetTarget())

	case !configExists:
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s Wrote default config to %s\n", cliui.SuccessMark, cfger.GetTarget())
	}

	if existed {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
		return nil
	}

	fmt.Fprintf(w, "Initialized .quill directory: %s\n", dir)
	return nil
}

func (c *initCommander) presetConfig(ctx context.Context) (*config.Config, error) {
	if strings.HasPrefix(c.preset, "http://") || strings.HasPrefix(c.preset, "https://") {
		return fetchRemoteConfig(ctx, c.preset)
	}
	return config.PresetConfig(c.preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("fetching remote config: empty body")
	}

	return config.ParseConfigTOML(body)
}
