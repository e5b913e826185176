// Package servecmder provides the serve command running the API server and
// the background indexing workers.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/api"
	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/eventstream"
	"github.com/papercomputeco/quill/pkg/ingest"
	"github.com/papercomputeco/quill/pkg/rag"
	"github.com/papercomputeco/quill/pkg/utils"
)

// jobTimeout bounds one background indexing job. A long article with every
// section retried to the hard cap stays well inside it.
const jobTimeout = 15 * time.Minute

type ServeCommander struct {
	configDir string
	noMCP     bool
	cfg       *config.Config
	logger    *slog.Logger
}

const serveLongDesc string = `Run the quill API server.

The server stores and indexes articles, answers similarity searches and,
unless --no-mcp is given, serves the search_articles MCP tool at /mcp.
Indexing requests are queued and processed by background workers; an
event is published for every processed article when an event stream is
configured.

Endpoints:
  GET    /v1/search?query=...&top_k=5
  GET    /v1/articles               POST /v1/articles
  GET    /v1/articles/:id           DELETE /v1/articles/:id
  POST   /v1/articles/:id/index     DELETE /v1/articles/:id/index
  POST   /v1/reconcile              GET /v1/stats

Examples:
  quill serve
  quill serve --listen :9000 --workers 8
  quill serve --eventstream-provider kafka --eventstream-brokers localhost:9092`

const serveShortDesc string = "Run the quill API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfg, err := stack.LoadConfig(cmd, config.CommonFlags, config.ServeFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.logger = stack.NewLogger(cmd)
			return cmder.run(cmd.Context())
		},
	}

	config.AddFlags(cmd, config.CommonFlags)
	config.AddFlags(cmd, config.ServeFlags)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the /mcp endpoint")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	st, err := stack.New(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			c.logger.Warn("failed to close backends", "error", err)
		}
	}()

	publisher, err := stack.NewPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := ingest.NewPool(&ingest.Config{
		Indexer:    st.Pipeline,
		Publisher:  publisher,
		Source:     eventstream.EventSource{Service: "quill/" + utils.Version, Model: c.cfg.Embedding.Model},
		NumWorkers: uint(c.cfg.Ingest.Workers),
		QueueSize:  uint(c.cfg.Ingest.QueueSize),
		JobTimeout: jobTimeout,
		OnResult: func(job ingest.Job, res *rag.IngestResult, err error) {
			if err == nil {
				c.logger.Debug("indexing job done",
					"article_id", job.ArticleID,
					"status", res.Status,
					"records", res.Records,
				)
			}
		},
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}
	// Closed before the backends so queued jobs finish against open stores.
	defer pool.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Pipeline:   st.Pipeline,
		Queue:      pool,
		MCP:        !c.noMCP,
	}, st.Store, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context cancelled, shutting down")
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", "error", err)
	}
	return nil
}
