// Package cache provides a content-addressed, TTL-expiring embedding cache
// keyed on (text, model).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/quill/pkg/logger"
)

// DefaultTTL is how long an entry stays valid after it is written.
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrNotFound is returned by a Store when no entry exists for a key.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt is returned by a Store when an entry exists but cannot be
	// decoded. The Cache treats it as a miss and removes the entry.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Entry is a cached embedding.
type Entry struct {
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"created_at"`
	TextLength int       `json:"text_length"`
	Model      string    `json:"model"`
}

// Store persists entries by key. Implementations must make Save atomic so
// that a concurrent Load observes either the old entry or the new one.
type Store interface {
	// Load returns ErrNotFound for a missing key and ErrCorrupt for an
	// undecodable entry.
	Load(ctx context.Context, key string) (*Entry, error)

	// Save writes or replaces the entry for key.
	Save(ctx context.Context, key string, e *Entry) error

	// Remove deletes the entry for key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Walk calls fn for every stored entry. e is nil for a corrupt entry.
	Walk(ctx context.Context, fn func(key string, e *Entry) error) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for store errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key for text embedded by model: the hex SHA-256 of
// the text, a zero byte, and the model name.
func Key(text, model string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// TTL reports the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached embedding for text under model. Expired and corrupt
// entries are removed and reported as misses; store errors are logged and
// never returned.
func (c *Cache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := Key(text, model)

	c.mu.RLock()
	e, err := c.store.Load(ctx, key)
	c.mu.RUnlock()

	switch {
	case errors.Is(err, ErrNotFound):
		return nil, false
	case errors.Is(err, ErrCorrupt):
		c.logger.Warn("removing corrupt embedding cache entry", "key", key, "error", err)
		c.remove(ctx, key)
		return nil, false
	case err != nil:
		c.logger.Warn("reading embedding cache", "key", key, "error", err)
		return nil, false
	}

	if len(e.Embedding) == 0 {
		c.logger.Warn("removing empty embedding cache entry", "key", key)
		c.remove(ctx, key)
		return nil, false
	}

	if c.expired(e) {
		c.remove(ctx, key)
		return nil, false
	}

	return e.Embedding, true
}

// Put stores vec for text under model.
func (c *Cache) Put(ctx context.Context, text, model string, vec []float32) error {
	e := &Entry{
		Embedding:  vec,
		CreatedAt:  c.now(),
		TextLength: utf8.RuneCountInString(text),
		Model:      model,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.Save(ctx, Key(text, model), e)
}

// Clean removes entries older than maxAge, or older than the TTL when maxAge
// is zero, along with any corrupt entries. It returns the number removed.
func (c *Cache) Clean(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = c.ttl
	}
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	err := c.store.Walk(ctx, func(key string, e *Entry) error {
		if e == nil || !e.CreatedAt.After(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if err := c.store.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}

	c.logger.Debug("cleaned embedding cache", "removed", removed, "max_age", maxAge)

	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet
// removed.
func (c *Cache) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Count(ctx)
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Sub(e.CreatedAt) >= c.ttl
}

// remove deletes key unless a concurrent Put has replaced it with a valid
// entry since it was read.
func (c *Cache) remove(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return
	case err != nil && !errors.Is(err, ErrCorrupt):
		return
	case err == nil && len(e.Embedding) > 0 && !c.expired(e):
		return
	}

	if err := c.store.Remove(ctx, key); err != nil {
		c.logger.Warn("removing embedding cache entry", "key", key, "error", err)
	}
}
