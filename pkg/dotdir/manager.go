// Package dotdir manages the .quill/ and ~/.quill directories.
//
// The dot directory holds config.toml, the SQLite article database, the
// embedding cache and, when the sqlite-vec provider is used, the vector index.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the quill directory.
	DirName = ".quill"

	// DatabaseFile is the default SQLite article database file name.
	DatabaseFile = "quill.db"

	// VectorFile is the default sqlite-vec index file name.
	VectorFile = "vectors.db"

	// CacheDir is the default embedding cache directory name.
	CacheDir = "cache"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .quill/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.quill/ dir
//  3. Home ~/.quill/ dir, if it exists
//
// An empty string is returned when none of the above resolve.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating quill directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if m.localDirExists() {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		return filepath.Join(cwd, DirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, DirName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", nil
	}

	return dir, nil
}

// Ensure behaves like Target but creates ~/.quill/ when nothing resolves.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if target != "" {
		return target, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating quill directory %s: %w", dir, err)
	}

	return dir, nil
}

// Path joins name onto the resolved target directory. It returns an empty
// string when no directory resolves so callers can fall back to in-memory
// backends.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil || target == "" {
		return "", err
	}
	return filepath.Join(target, name), nil
}

// localDirExists checks whether a .quill/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
