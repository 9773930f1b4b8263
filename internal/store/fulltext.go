package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// FullTextBackend represents the full-text index backend type.
type FullTextBackend string

const (
	// FullTextBackendSQLite uses SQLite FTS5 (default).
	FullTextBackendSQLite FullTextBackend = "sqlite"

	// FullTextBackendBleve uses Bleve v2 with BoltDB (single process only).
	FullTextBackendBleve FullTextBackend = "bleve"

	// FullTextBackendNone disables the full-text index.
	FullTextBackendNone FullTextBackend = "none"
)

// NewFullTextIndex creates a FullTextIndex using the specified backend.
// The path should be the base path without extension; the extension is
// added based on the backend type (.db for SQLite, .bleve for Bleve).
// If basePath is empty, an in-memory index is created.
// The "none" backend returns (nil, nil).
func NewFullTextIndex(basePath string, config FullTextConfig, backend string) (FullTextIndex, error) {
	switch FullTextBackend(backend) {
	case FullTextBackendSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteFTSIndex(path, config)

	case FullTextBackendBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveIndex(path, config)

	case FullTextBackendNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown full-text backend: %s (valid options: sqlite, bleve, none)", backend)
	}
}

// DetectFullTextBackend detects which backend an existing index uses based on file existence.
// Returns the detected backend or an empty string if no index exists.
func DetectFullTextBackend(basePath string) FullTextBackend {
	if fileExists(basePath + ".db") {
		return FullTextBackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return FullTextBackendBleve
	}
	return ""
}

// FullTextBasePath returns the base path of the full-text index in dataDir.
func FullTextBasePath(dataDir string) string {
	return filepath.Join(dataDir, "fulltext")
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
