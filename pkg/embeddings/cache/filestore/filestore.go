// Package filestore is a cache.Store that keeps one JSON file per entry in a
// directory sharded by the first two hex characters of the key.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/quill/pkg/embeddings/cache"
)

const entryExt = ".json"

// Store implements cache.Store on the local filesystem.
type Store struct {
	dir string
}

// New creates the cache directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	shard := key
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(s.dir, shard, key+entryExt)
}

// Load reads the entry for key.
func (s *Store) Load(_ context.Context, key string) (*cache.Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*cache.Entry, error) {
	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrCorrupt, err)
	}
	return &e, nil
}

// Save writes the entry to a temporary file in the shard and renames it into
// place.
func (s *Store) Save(_ context.Context, key string, e *cache.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	target := s.path(key)
	shard := filepath.Dir(target)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return fmt.Errorf("creating cache shard: %w", err)
	}

	tmp, err := os.CreateTemp(shard, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Remove deletes the entry for key.
func (s *Store) Remove(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

// Walk visits every entry file. Leftover temp files are skipped.
func (s *Store) Walk(ctx context.Context, fn func(key string, e *cache.Entry) error) error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), entryExt) {
			return nil
		}

		key := strings.TrimSuffix(d.Name(), entryExt)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading cache entry: %w", err)
		}

		e, err := decode(data)
		if err != nil {
			return fn(key, nil)
		}
		return fn(key, e)
	})
}

// Count returns the number of entry files.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := filepath.WalkDir(s.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), entryExt) {
			n++
		}
		return nil
	})
	return n, err
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ cache.Store = (*Store)(nil)
