// Package storage defines the primary record store for articles.
package storage

import (
	"context"

	"github.com/papercomputeco/quill/pkg/article"
)

// Driver persists articles. It is the source of truth the vector index is
// reconciled against.
type Driver interface {
	// Put inserts or replaces an article. The article must validate.
	Put(ctx context.Context, a *article.Article) error

	// Get retrieves an article by id. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*article.Article, error)

	// Existing reports which of ids are present in the store.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)

	// Recent returns up to limit articles, most recently published first.
	Recent(ctx context.Context, limit int) ([]*article.Article, error)

	// List returns every article, most recently published first.
	List(ctx context.Context) ([]*article.Article, error)

	// MarkSaved sets the saved flag. Returns NotFoundError when absent.
	MarkSaved(ctx context.Context, id string) error

	// UnmarkSaved clears the saved flag. Returns NotFoundError when absent.
	UnmarkSaved(ctx context.Context, id string) error

	// Delete removes an article. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored articles.
	Count(ctx context.Context) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}
