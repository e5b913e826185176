// Package quillcmder is the root of the quill command tree.
package quillcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/quill/cmd/quill/auth"
	cachecmder "github.com/papercomputeco/quill/cmd/quill/cache"
	configcmder "github.com/papercomputeco/quill/cmd/quill/config"
	deletecmder "github.com/papercomputeco/quill/cmd/quill/delete"
	indexcmder "github.com/papercomputeco/quill/cmd/quill/index"
	initcmder "github.com/papercomputeco/quill/cmd/quill/init"
	reconcilecmder "github.com/papercomputeco/quill/cmd/quill/reconcile"
	searchcmder "github.com/papercomputeco/quill/cmd/quill/search"
	servecmder "github.com/papercomputeco/quill/cmd/quill/serve"
	statscmder "github.com/papercomputeco/quill/cmd/quill/stats"
	versioncmder "github.com/papercomputeco/quill/cmd/version"
)

const quillLongDesc string = `quill turns aggregated articles into a searchable vector index.

Articles are kept in a primary store, embedded through a cached, retrying
embedding client and written to a vector index. Long articles are indexed
both as a whole and per section.

Run the server and query it:
  quill serve                 Run the API server and indexing workers
  quill search <query>        Search a running server

Work on the local index directly:
  quill index <id>...         Embed and index stored articles
  quill delete <id>...        Remove articles from the index
  quill reconcile             Drop records of deleted articles
  quill stats                 Show index, store and cache counts
  quill cache clean           Remove expired cache entries
  quill auth voyage           Store the Voyage AI API key`

const quillShortDesc string = "quill - article RAG ingestion"

func NewQuillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quill",
		Short:         quillShortDesc,
		Long:          quillLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .quill configuration directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(indexcmder.NewIndexCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(deletecmder.NewDeleteCmd())
	cmd.AddCommand(reconcilecmder.NewReconcileCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(cachecmder.NewCacheCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
