// Package configcmder provides the config command for managing persistent
// quill configuration stored in the .quill/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
)

const configLongDesc string = `Manage persistent quill configuration.

Configuration is stored as config.toml in the .quill/ directory and provides
default values for command flags. CLI flags and QUILL_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example
storage.provider, embedding.model, cache.ttl or pipeline.chunk_pause.
Run "quill config list" to see every key.

Use subcommands to get, set, or list configuration values:
  quill config set <key> <value>    Set a configuration value
  quill config get <key>            Get a configuration value
  quill config list                 List all configuration values

Examples:
  quill config set embedding.model nomic-embed-text
  quill config set pipeline.chunk_pause 0s
  quill config get vector_store.provider
  quill config list`

const configShortDesc string = "Manage persistent quill configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// displayValue hides secrets.
func displayValue(key, value string) string {
	if value != "" && strings.HasSuffix(key, "api_key") {
		return "********"
	}
	return value
}
