// Package memory is the document memory store: a façade over the durable
// record store, the in-memory vector index and the optional full-text
// index that keeps the three consistent.
package memory

import (
	"runtime"

	"github.com/Aman-CERP/docmemory/internal/config"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// Options are fixed when a Store is opened.
type Options struct {
	// Dir is the storage directory. Empty opens a private in-memory store
	// with no lock, no state file and no full-text persistence.
	Dir string

	// Dimensions is the embedding width used for the lifetime of the store.
	Dimensions int

	// Backend selects the vector index: "flat" or "hnsw".
	Backend string
	HNSW    store.HNSWConfig

	// FullText selects the full-text backend: "sqlite", "bleve" or "none".
	FullText string

	// CacheSize is the record LRU capacity. 0 disables the cache.
	CacheSize int

	// MaxConnections bounds the SQLite pool.
	MaxConnections int

	// CompactThreshold is the tombstone ratio that triggers compaction.
	CompactThreshold float64

	// CompactMinTombstones is the least tombstone count worth compacting.
	CompactMinTombstones int
}

// DefaultOptions returns options for dir with the default index settings.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:                  dir,
		Dimensions:           384,
		Backend:              string(store.VectorBackendFlat),
		HNSW:                 store.HNSWConfig{M: 16, EfSearch: 64},
		FullText:             string(store.FullTextBackendSQLite),
		CacheSize:            1000,
		MaxConnections:       runtime.NumCPU(),
		CompactThreshold:     0.25,
		CompactMinTombstones: 64,
	}
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dir:        cfg.Storage.Path,
		Dimensions: cfg.Embeddings.Dimensions,
		Backend:    cfg.Index.Backend,
		HNSW: store.HNSWConfig{
			M:        cfg.Index.HNSWM,
			EfSearch: cfg.Index.HNSWEfSearch,
		},
		FullText:             cfg.Index.FullText,
		CacheSize:            cfg.Storage.CacheSize,
		MaxConnections:       cfg.Storage.MaxConnections,
		CompactThreshold:     cfg.Index.CompactThreshold,
		CompactMinTombstones: cfg.Index.CompactMinTombstones,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions(o.Dir)
	if o.Dimensions <= 0 {
		o.Dimensions = def.Dimensions
	}
	if o.Backend == "" {
		o.Backend = def.Backend
	}
	if o.FullText == "" {
		o.FullText = def.FullText
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = def.MaxConnections
	}
	if o.CompactThreshold <= 0 {
		o.CompactThreshold = def.CompactThreshold
	}
	if o.CompactMinTombstones <= 0 {
		o.CompactMinTombstones = def.CompactMinTombstones
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
}
