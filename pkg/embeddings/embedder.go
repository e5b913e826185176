// Package embeddings defines the embedding provider contract shared by the
// concrete providers, the retrying client and the embedding cache.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model reports the model that produced the embeddings. Cache entries
	// are keyed on it, so two models never share a cached vector.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}
