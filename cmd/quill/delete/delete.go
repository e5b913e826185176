// Package deletecmder provides the delete command, which removes articles
// from the vector index and optionally from the primary store.
package deletecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/storage"
)

type deleteCommander struct {
	purge bool

	configDir string
	cfg       *config.Config
	logger    *slog.Logger
}

const deleteLongDesc string = `Remove articles from the vector index.

Every record written for the article is deleted, including section records
of long articles, and the article is marked as not indexed. The article
itself stays in the primary store unless --purge is given.

Examples:
  quill delete 8f2c1a
  quill delete 8f2c1a 91bb07 --purge`

const deleteShortDesc string = "Remove articles from the index"

func NewDeleteCmd() *cobra.Command {
	cmder := &deleteCommander{}

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cfg, err := stack.LoadConfig(cmd, config.CommonFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.logger = stack.NewLogger(cmd)

			st, err := stack.New(cmd.Context(), cmder.cfg, cmder.configDir, cmder.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			return DeleteArticles(cmd.Context(), cmd.OutOrStdout(), st.Pipeline, st.Store, args, cmder.purge)
		},
	}

	config.AddFlags(cmd, config.CommonFlags)
	cmd.Flags().BoolVar(&cmder.purge, "purge", false, "Also delete the articles from the primary store")

	return cmd
}

// Remover removes an article's records from the vector index.
type Remover interface {
	DeleteDocument(ctx context.Context, id string) (int, error)
}

// DeleteArticles removes each article from the index and, with purge, from
// store.
func DeleteArticles(ctx context.Context, w io.Writer, r Remover, store storage.Driver, ids []string, purge bool) error {
	var errs []error
	for _, id := range ids {
		n, err := r.DeleteDocument(ctx, id)
		if err == nil && purge {
			err = store.Delete(ctx, id)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, id, cliui.DimStyle.Render(err.Error()))
			continue
		}

		msg := fmt.Sprintf("%d records removed", n)
		if purge {
			msg += ", article deleted"
		}
		fmt.Fprintf(w, "  %s %s %s\n", cliui.SuccessMark, id, cliui.DimStyle.Render(msg))
	}
	return errors.Join(errs...)
}
