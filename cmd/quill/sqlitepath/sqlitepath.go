// Package sqlitepath locates the SQLite article database.
package sqlitepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/quill/pkg/dotdir"
)

// ErrNotFound is returned when no existing database could be located.
var ErrNotFound = errors.New("could not find quill SQLite database; pass --sqlite")

// ResolveSQLitePath returns the path of an existing article database.
// Precedence: override, QUILL_SQLITE, QUILL_DB, the resolved .quill
// directory, then well known locations.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, env := range []string{"QUILL_SQLITE", "QUILL_DB"} {
		if envPath := strings.TrimSpace(os.Getenv(env)); envPath != "" {
			return envPath, nil
		}
	}

	if p, err := dotdir.NewManager().Path(configDir, dotdir.DatabaseFile); err == nil && p != "" {
		if fileExists(p) {
			return p, nil
		}
	}

	for _, candidate := range sqliteCandidates() {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

// DefaultSQLitePath returns the path a new article database is created at,
// creating the .quill directory when needed.
func DefaultSQLitePath(configDir string) (string, error) {
	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving quill directory: %w", err)
	}
	return filepath.Join(dir, dotdir.DatabaseFile), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sqliteCandidates() []string {
	candidates := []string{
		dotdir.DatabaseFile,
		"quill.sqlite",
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append([]string{
			filepath.Join(home, dotdir.DirName, dotdir.DatabaseFile),
		}, candidates...)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{
			filepath.Join(xdgHome, "quill", dotdir.DatabaseFile),
		}, candidates...)
	}

	return candidates
}
