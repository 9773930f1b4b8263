package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir and clears overrides.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"DOCMEMORY_STORAGE_PATH", "DOCMEMORY_EMBEDDINGS_PROVIDER", "DOCMEMORY_EMBEDDINGS_MODEL",
		"DOCMEMORY_EMBEDDINGS_DIMENSIONS", "DOCMEMORY_OLLAMA_HOST", "DOCMEMORY_SEMANTIC_WEIGHT",
		"DOCMEMORY_KEYWORD_WEIGHT", "DOCMEMORY_INDEX_BACKEND", "DOCMEMORY_FULLTEXT_BACKEND",
		"DOCMEMORY_BACKUP_ENABLED", "DOCMEMORY_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "./docmemory_storage", cfg.Storage.Path)
	assert.Equal(t, runtime.NumCPU(), cfg.Storage.MaxConnections)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 1000, cfg.Chunking.MaxSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 50, cfg.Chunking.MinSize)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.KeywordWeight)
	assert.Equal(t, 0.7, cfg.Search.Rerank.Similarity)
	assert.Equal(t, 0.2, cfg.Search.Rerank.Recency)
	assert.Equal(t, 0.1, cfg.Search.Rerank.Richness)
	assert.Equal(t, 30.0, cfg.Search.Rerank.HalfLifeDays)
	assert.Equal(t, "flat", cfg.Index.Backend)
	assert.Equal(t, "sqlite", cfg.Index.FullText)
	assert.True(t, cfg.Backup.IsEnabled())
	assert.Equal(t, 5, cfg.Backup.Keep)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.Debounce())
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolate(t)

	// Given: a project config with a few fields set
	dir := t.TempDir()
	yml := `
storage:
  path: /data/memory
search:
  semantic_weight: 0.5
  keyword_weight: 0.5
index:
  backend: hnsw
backup:
  enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigYAML), []byte(yml), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: set fields change and the rest keep their defaults
	assert.Equal(t, "/data/memory", cfg.Storage.Path)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, "hnsw", cfg.Index.Backend)
	assert.False(t, cfg.Backup.IsEnabled())
	assert.Equal(t, 1000, cfg.Chunking.MaxSize)
}

func TestLoad_UserConfigThenProjectPrecedence(t *testing.T) {
	isolate(t)

	// Given: a user config and a project config both setting the log level
	xdg := os.Getenv("XDG_CONFIG_HOME")
	userPath := filepath.Join(xdg, "docmemory", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("logging:\n  level: debug\nstorage:\n  cache_size: 50\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigYML), []byte("logging:\n  level: warn\n"), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins, user-only fields survive
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Storage.CacheSize)
}

func TestLoad_EnvOverridesAllowExplicitZero(t *testing.T) {
	isolate(t)

	// Given: env vars setting a pure-keyword hybrid
	t.Setenv("DOCMEMORY_SEMANTIC_WEIGHT", "0")
	t.Setenv("DOCMEMORY_KEYWORD_WEIGHT", "1")
	t.Setenv("DOCMEMORY_INDEX_BACKEND", "hnsw")

	// When: loading
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	// Then: the overrides apply
	assert.Equal(t, 0.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 1.0, cfg.Search.KeywordWeight)
	assert.Equal(t, "hnsw", cfg.Index.Backend)
}

func TestLoad_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	isolate(t)

	// Given: a .env file and a process env var for the same key
	dir := t.TempDir()
	envFile := "DOCMEMORY_LOG_LEVEL=error\nDOCMEMORY_STORAGE_PATH=/from/dotenv\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(envFile), 0o644))
	t.Setenv("DOCMEMORY_LOG_LEVEL", "debug")
	// godotenv only fills unset variables; an empty value counts as set.
	require.NoError(t, os.Unsetenv("DOCMEMORY_STORAGE_PATH"))
	t.Cleanup(func() { _ = os.Unsetenv("DOCMEMORY_STORAGE_PATH") })

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: process env wins; .env fills the gap
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/from/dotenv", cfg.Storage.Path)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum", func(c *Config) { c.Search.SemanticWeight = 0.9 }},
		{"weight out of range", func(c *Config) { c.Search.KeywordWeight = 1.5 }},
		{"rerank weights do not sum", func(c *Config) { c.Search.Rerank.Recency = 0.5 }},
		{"overlap not below max", func(c *Config) { c.Chunking.Overlap = 1000 }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"unknown vector backend", func(c *Config) { c.Index.Backend = "faiss" }},
		{"unknown fulltext backend", func(c *Config) { c.Index.FullText = "lucene" }},
		{"keep zero", func(c *Config) { c.Backup.Keep = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigYAML), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)

	// Given: a config written to disk
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewConfig()
	cfg.Storage.Path = "/srv/docmemory"
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading it back
	loaded, err := LoadFile(path)
	require.NoError(t, err)

	// Then: values survive
	assert.Equal(t, "/srv/docmemory", loaded.Storage.Path)
	assert.Equal(t, cfg.Search, loaded.Search)
}

func TestBackupConfigFile_KeepsNewest(t *testing.T) {
	// Given: a config file
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: backing it up more than MaxBackups times
	for i := 0; i < MaxBackups+2; i++ {
		got, err := BackupConfigFile(path)
		require.NoError(t, err)
		require.FileExists(t, got)
		time.Sleep(5 * time.Millisecond)
	}

	// Then: only MaxBackups remain
	backups, err := ListConfigBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestBackupConfigFile_MissingFileIsNoop(t *testing.T) {
	got, err := BackupConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
