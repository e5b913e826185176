// Package inmemory provides a map-backed storage.Driver.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of articles
	mu sync.RWMutex

	// articles is the in memory map of articles keyed by article id
	articles map[string]*article.Article
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		articles: make(map[string]*article.Article),
	}
}

func clone(a *article.Article) *article.Article {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	return &c
}

// Put stores a copy of the article.
func (s *Driver) Put(_ context.Context, a *article.Article) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := clone(a)
	if c.CreatedAt.IsZero() {
		if prev, ok := s.articles[a.ID]; ok {
			c.CreatedAt = prev.CreatedAt
		} else {
			c.CreatedAt = time.Now().UTC()
		}
	}
	s.articles[a.ID] = c
	return nil
}

// Get retrieves an article by id.
func (s *Driver) Get(_ context.Context, id string) (*article.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return clone(a), nil
}

// Existing reports which of ids are stored.
func (s *Driver) Existing(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.articles[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Recent returns up to limit articles, newest first.
func (s *Driver) Recent(ctx context.Context, limit int) ([]*article.Article, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// List returns every article, newest first. Ties are broken by id.
func (s *Driver) List(_ context.Context) ([]*article.Article, error) {
	s.mu.RLock()
	out := make([]*article.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, clone(a))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Driver) setSaved(id string, saved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}
	a.Saved = saved
	return nil
}

// MarkSaved sets the saved flag.
func (s *Driver) MarkSaved(_ context.Context, id string) error {
	return s.setSaved(id, true)
}

// UnmarkSaved clears the saved flag.
func (s *Driver) UnmarkSaved(_ context.Context, id string) error {
	return s.setSaved(id, false)
}

// Delete removes an article.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.articles, id)
	return nil
}

// Count returns the number of stored articles.
func (s *Driver) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles), nil
}

// Close is a no-op.
func (s *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
