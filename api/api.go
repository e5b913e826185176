package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/quill/api/mcp"
	"github.com/papercomputeco/quill/pkg/storage"
)

// Server is the API server for managing and querying the quill system
type Server struct {
	config Config
	store  storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// ErrorResponse is the body returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new API server.
// The store is injected so it can be shared with the pipeline and the
// ingestion pool.
func NewServer(config Config, store storage.Driver, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("storage driver is required")
	}
	if config.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/stats", s.handleStats)
	v1.Get("/search", s.handleSearchEndpoint)
	v1.Post("/reconcile", s.handleReconcile)

	v1.Get("/articles", s.handleListArticles)
	v1.Post("/articles", s.handlePutArticle)
	v1.Get("/articles/:id", s.handleGetArticle)
	v1.Delete("/articles/:id", s.handleDeleteArticle)
	v1.Post("/articles/:id/index", s.handleIndexArticle)
	v1.Delete("/articles/:id/index", s.handleUnindexArticle)

	if config.MCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Querier: config.Pipeline,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", s.config.MCP,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}
