// Package api provides the HTTP API server for adding, indexing and searching
// articles.
package api

import (
	"context"

	"github.com/papercomputeco/quill/pkg/ingest"
	"github.com/papercomputeco/quill/pkg/rag"
)

// Pipeline is the subset of *rag.Pipeline the server calls.
type Pipeline interface {
	AddDocument(ctx context.Context, id string) (*rag.IngestResult, error)
	Query(ctx context.Context, text string, k int) (*rag.QueryOutput, error)
	Reconcile(ctx context.Context) (int, error)
	DeleteDocument(ctx context.Context, id string) (int, error)
	Stats(ctx context.Context) (*rag.Stats, error)
}

// Queue accepts background indexing jobs. *ingest.Pool implements it.
type Queue interface {
	Enqueue(job ingest.Job) bool
	Stats() ingest.Stats
}

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Pipeline embeds, indexes and queries articles. Required.
	Pipeline Pipeline

	// Queue indexes articles in the background. When nil, indexing requests
	// run synchronously.
	Queue Queue

	// MCP enables the /mcp endpoint serving the search_articles tool.
	MCP bool
}
