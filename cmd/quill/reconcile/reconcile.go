// Package reconcilecmder provides the reconcile command, which drops vector
// index records whose article no longer exists in the primary store.
package reconcilecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
)

const reconcileLongDesc string = `Remove orphaned records from the vector index.

A record is orphaned when neither the article it was written for nor, for a
section record, its parent article exists in the primary store anymore.
Articles are checked in batches so large indexes do not load every id into
a single query.

Examples:
  quill reconcile`

const reconcileShortDesc string = "Drop index records of deleted articles"

func NewReconcileCmd() *cobra.Command {
	var (
		configDir string
		cfg       *config.Config
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: reconcileShortDesc,
		Long:  reconcileLongDesc,
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

			w := cmd.OutOrStdout()
			var removed int
			err = cliui.Step(w, "Reconciling vector index", func() error {
				var rerr error
				removed, rerr = st.Pipeline.Reconcile(cmd.Context())
				return rerr
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d orphaned records removed", removed)))
			return nil
		},
	}

	config.AddFlags(cmd, config.CommonFlags)

	return cmd
}
