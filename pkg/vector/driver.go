// Package vector provides interfaces and implementations for vector storage.
package vector

import "context"

// Document is a stored vector record: one per short or medium article, or
// one per section of a long article.
type Document struct {
	// ID is the article id, or "{article_id}_section_{n}" for a section.
	ID string

	// Embedding is the vector representation of the document content.
	Embedding []float32

	// Metadata describes the article the vector belongs to.
	Metadata Metadata
}

// QueryResult is a search hit.
type QueryResult struct {
	Document

	// Distance is the cosine distance to the query vector, in [0, 2].
	// Lower is more similar.
	Distance float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents nearest to the given embedding, ordered
	// by ascending cosine distance.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// ListIDs returns the IDs of every stored document.
	ListIDs(ctx context.Context) ([]string, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the driver.
	Close() error
}
