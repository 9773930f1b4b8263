package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Project config file names, checked in order.
const (
	ProjectConfigYAML = ".docmemory.yaml"
	ProjectConfigYML  = ".docmemory.yml"
)

// Config represents the complete docmemory configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Backup     BackupConfig     `yaml:"backup" json:"backup"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig configures the durable record store.
type StorageConfig struct {
	// Path is the storage directory holding the database, indexes and backups.
	Path string `yaml:"path" json:"path"`
	// MaxConnections bounds the SQLite connection pool. Each concurrent
	// caller checks out its own connection.
	MaxConnections int `yaml:"max_connections" json:"max_connections"`
	// CacheSize is the number of records kept in the in-memory LRU.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // static or ollama
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the number of embeddings kept in the LRU. 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// RequestsPerSecond caps provider requests. 0 means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	MaxSize int `yaml:"max_size" json:"max_size"`
	Overlap int `yaml:"overlap" json:"overlap"`
	MinSize int `yaml:"min_size" json:"min_size"`
}

// SearchConfig configures hybrid search and reranking.
// Weights are configurable via:
//  1. User config (~/.config/docmemory/config.yaml)
//  2. Project config (.docmemory.yaml)
//  3. Env vars (DOCMEMORY_SEMANTIC_WEIGHT, DOCMEMORY_KEYWORD_WEIGHT)
type SearchConfig struct {
	// SemanticWeight is the hybrid weight of vector similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// KeywordWeight is the hybrid weight of keyword matching (0.0-1.0).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	DefaultLimit int          `yaml:"default_limit" json:"default_limit"`
	Rerank       RerankConfig `yaml:"rerank" json:"rerank"`
}

// RerankConfig holds the blended-score weights used when reranking
// semantic results.
type RerankConfig struct {
	Similarity   float64 `yaml:"similarity" json:"similarity"`
	Recency      float64 `yaml:"recency" json:"recency"`
	Richness     float64 `yaml:"richness" json:"richness"`
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days"`
}

// IndexConfig selects index backends and compaction policy.
type IndexConfig struct {
	// Backend is the vector index: "flat" (exact, default) or "hnsw".
	Backend string `yaml:"backend" json:"backend"`
	// FullText is the auxiliary BM25 index: "sqlite" (default), "bleve" or "none".
	FullText string `yaml:"fulltext" json:"fulltext"`
	// CompactThreshold is the tombstone ratio that triggers compaction.
	CompactThreshold float64 `yaml:"compact_threshold" json:"compact_threshold"`
	// CompactMinTombstones avoids compacting tiny indexes.
	CompactMinTombstones int `yaml:"compact_min_tombstones" json:"compact_min_tombstones"`
	HNSWM                int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch         int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// BackupConfig configures scheduled backups of the storage directory.
type BackupConfig struct {
	// Enabled is a pointer so an explicit false in a config file survives merging.
	Enabled          *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Schedule         string `yaml:"schedule" json:"schedule"`
	AutosaveSchedule string `yaml:"autosave_schedule" json:"autosave_schedule"`
	Keep             int    `yaml:"keep" json:"keep"`
}

// IsEnabled reports whether scheduled backups should run.
func (b BackupConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// IngestConfig configures the ingestion pipeline and directory watcher.
type IngestConfig struct {
	Workers       int    `yaml:"workers" json:"workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// Debounce parses WatchDebounce, falling back to 500ms.
func (i IngestConfig) Debounce() time.Duration {
	d, err := time.ParseDuration(i.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Path:           "./docmemory_storage",
			MaxConnections: runtime.NumCPU(),
			CacheSize:      1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 384,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  2048,
		},
		Chunking: ChunkingConfig{
			MaxSize: 1000,
			Overlap: 100,
			MinSize: 50,
		},
		Search: SearchConfig{
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			DefaultLimit:   10,
			Rerank: RerankConfig{
				Similarity:   0.7,
				Recency:      0.2,
				Richness:     0.1,
				HalfLifeDays: 30,
			},
		},
		Index: IndexConfig{
			Backend:              "flat",
			FullText:             "sqlite",
			CompactThreshold:     0.25,
			CompactMinTombstones: 64,
			HNSWM:                16,
			HNSWEfSearch:         64,
		},
		Backup: BackupConfig{
			Schedule:         "@every 1h",
			AutosaveSchedule: "@every 5m",
			Keep:             5,
		},
		Ingest: IngestConfig{
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/docmemory/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docmemory/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docmemory", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docmemory", "config.yaml")
	}
	return filepath.Join(home, ".config", "docmemory", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAML(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for the given working directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docmemory/config.yaml)
//  3. Project config (.docmemory.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (DOCMEMORY_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults merged with a single explicit config file, then
// env overrides. Used by the --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	var parsed Config
	if err := parseYAML(path, &parsed); err != nil {
		return nil, err
	}
	cfg.mergeWith(&parsed)

	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadFromDir attempts to load .docmemory.yaml or .docmemory.yml.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{ProjectConfigYAML, ProjectConfigYML} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parseYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func parseYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Storage
	mergeString(&c.Storage.Path, other.Storage.Path)
	mergeInt(&c.Storage.MaxConnections, other.Storage.MaxConnections)
	mergeInt(&c.Storage.CacheSize, other.Storage.CacheSize)

	// Embeddings
	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeFloat(&c.Embeddings.RequestsPerSecond, other.Embeddings.RequestsPerSecond)

	// Chunking
	mergeInt(&c.Chunking.MaxSize, other.Chunking.MaxSize)
	mergeInt(&c.Chunking.Overlap, other.Chunking.Overlap)
	mergeInt(&c.Chunking.MinSize, other.Chunking.MinSize)

	// Search. 0 is not a practical weight, so only non-zero values merge;
	// env vars can still set an explicit zero.
	mergeFloat(&c.Search.SemanticWeight, other.Search.SemanticWeight)
	mergeFloat(&c.Search.KeywordWeight, other.Search.KeywordWeight)
	mergeInt(&c.Search.DefaultLimit, other.Search.DefaultLimit)
	mergeFloat(&c.Search.Rerank.Similarity, other.Search.Rerank.Similarity)
	mergeFloat(&c.Search.Rerank.Recency, other.Search.Rerank.Recency)
	mergeFloat(&c.Search.Rerank.Richness, other.Search.Rerank.Richness)
	mergeFloat(&c.Search.Rerank.HalfLifeDays, other.Search.Rerank.HalfLifeDays)

	// Index
	mergeString(&c.Index.Backend, other.Index.Backend)
	mergeString(&c.Index.FullText, other.Index.FullText)
	mergeFloat(&c.Index.CompactThreshold, other.Index.CompactThreshold)
	mergeInt(&c.Index.CompactMinTombstones, other.Index.CompactMinTombstones)
	mergeInt(&c.Index.HNSWM, other.Index.HNSWM)
	mergeInt(&c.Index.HNSWEfSearch, other.Index.HNSWEfSearch)

	// Backup
	if other.Backup.Enabled != nil {
		enabled := *other.Backup.Enabled
		c.Backup.Enabled = &enabled
	}
	mergeString(&c.Backup.Schedule, other.Backup.Schedule)
	mergeString(&c.Backup.AutosaveSchedule, other.Backup.AutosaveSchedule)
	mergeInt(&c.Backup.Keep, other.Backup.Keep)

	// Ingest
	mergeInt(&c.Ingest.Workers, other.Ingest.Workers)
	mergeString(&c.Ingest.WatchDebounce, other.Ingest.WatchDebounce)

	// Logging
	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies DOCMEMORY_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCMEMORY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DOCMEMORY_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCMEMORY_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCMEMORY_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("DOCMEMORY_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	// Explicit zero weights are allowed here.
	if v := os.Getenv("DOCMEMORY_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("DOCMEMORY_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}

	if v := os.Getenv("DOCMEMORY_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("DOCMEMORY_FULLTEXT_BACKEND"); v != "" {
		c.Index.FullText = v
	}
	if v := os.Getenv("DOCMEMORY_BACKUP_ENABLED"); v != "" {
		enabled := strings.EqualFold(v, "true") || v == "1"
		c.Backup.Enabled = &enabled
	}
	if v := os.Getenv("DOCMEMORY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("storage.cache_size must be non-negative, got %d", c.Storage.CacheSize)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	validProviders := map[string]bool{"static": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return fmt.Errorf("embeddings.requests_per_second must be non-negative, got %f", c.Embeddings.RequestsPerSecond)
	}

	if c.Chunking.MaxSize <= 0 {
		return fmt.Errorf("chunking.max_size must be positive, got %d", c.Chunking.MaxSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("chunking.overlap must be in [0, max_size), got %d", c.Chunking.Overlap)
	}
	if c.Chunking.MinSize < 0 {
		return fmt.Errorf("chunking.min_size must be non-negative, got %d", c.Chunking.MinSize)
	}

	for name, w := range map[string]float64{
		"search.semantic_weight":   c.Search.SemanticWeight,
		"search.keyword_weight":    c.Search.KeywordWeight,
		"search.rerank.similarity": c.Search.Rerank.Similarity,
		"search.rerank.recency":    c.Search.Rerank.Recency,
		"search.rerank.richness":   c.Search.Rerank.Richness,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, w)
		}
	}
	if sum := c.Search.SemanticWeight + c.Search.KeywordWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}
	r := c.Search.Rerank
	if sum := r.Similarity + r.Recency + r.Richness; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("rerank weights must sum to 1.0, got %.2f", sum)
	}
	if r.HalfLifeDays <= 0 {
		return fmt.Errorf("search.rerank.half_life_days must be positive, got %f", r.HalfLifeDays)
	}

	switch strings.ToLower(c.Index.Backend) {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("index.backend must be 'flat' or 'hnsw', got %s", c.Index.Backend)
	}
	switch strings.ToLower(c.Index.FullText) {
	case "sqlite", "bleve", "none":
	default:
		return fmt.Errorf("index.fulltext must be 'sqlite', 'bleve', or 'none', got %s", c.Index.FullText)
	}
	if c.Index.CompactThreshold <= 0 || c.Index.CompactThreshold > 1 {
		return fmt.Errorf("index.compact_threshold must be in (0, 1], got %f", c.Index.CompactThreshold)
	}

	if c.Backup.Keep < 1 {
		return fmt.Errorf("backup.keep must be at least 1, got %d", c.Backup.Keep)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
