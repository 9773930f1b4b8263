package memory

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/store"
	"github.com/Aman-CERP/docmemory/pkg/version"
)

// VectorHit is a live vector index match resolved to its record id.
type VectorHit struct {
	ID    string
	Score float64
}

// Update lists the fields to overwrite. Nil fields are left unchanged; a
// non-nil empty slice or map clears the field.
type Update struct {
	Title        *string
	Content      *string
	SourceFile   *string
	DocumentType *string
	Summary      *string
	Timestamp    *time.Time
	Embedding    []float32
	Tags         []string
	Metadata     map[string]any
	PageNumbers  []int
}

func (u Update) apply(rec *store.Record) {
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.Content != nil {
		rec.Content = *u.Content
	}
	if u.SourceFile != nil {
		rec.SourceFile = *u.SourceFile
	}
	if u.DocumentType != nil {
		rec.DocumentType = *u.DocumentType
	}
	if u.Summary != nil {
		rec.Summary = *u.Summary
	}
	if u.Timestamp != nil {
		rec.Timestamp = *u.Timestamp
	}
	if u.Tags != nil {
		rec.Tags = append([]string{}, u.Tags...)
	}
	if u.Metadata != nil {
		rec.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			rec.Metadata[k] = v
		}
	}
	if u.PageNumbers != nil {
		rec.PageNumbers = append([]int{}, u.PageNumbers...)
	}
}

func (u Update) touchesText() bool {
	return u.Title != nil || u.Content != nil
}

// Stats describes the store for status reporting.
type Stats struct {
	Dir             string
	Documents       int
	IndexSize       int
	Slots           int
	Tombstones      int
	FullTextDocs    int
	Dimensions      int
	Backend         string
	FullTextBackend string
}

// Store owns the record store, the vector index and the full-text index.
// Store, Update and Delete are serialized by mu; reads never observe a
// partially written record because every returned record is a copy.
type Store struct {
	mu   sync.RWMutex
	opts Options

	records  *store.SQLiteRecordStore
	index    store.VectorIndex
	fulltext store.FullTextIndex // nil when disabled
	cache    *lru.Cache[string, *store.Record]

	idToSlot map[string]int
	slotToID map[int]string

	lock   *dirLock
	state  *SystemState
	now    func() time.Time
	closed bool
}

var errClosed = docerrors.New(docerrors.ErrCodeInternal, "memory store is closed", nil)

// Open opens or creates the store described by opts. The storage directory
// is locked for the lifetime of the Store; a second Open on the same
// directory fails with ERR_207_STORE_LOCKED until Close.
func Open(ctx context.Context, opts Options) (*Store, error) {
	return open(ctx, opts, time.Now)
}

// OpenWithClock is Open with an injected clock for timestamps and state.
func OpenWithClock(ctx context.Context, opts Options, now func() time.Time) (*Store, error) {
	return open(ctx, opts, now)
}

func open(ctx context.Context, opts Options, now func() time.Time) (*Store, error) {
	opts.applyDefaults()

	s := &Store{
		opts:     opts,
		idToSlot: make(map[string]int),
		slotToID: make(map[int]string),
		now:      now,
	}

	if opts.Dir != "" {
		s.lock = newDirLock(opts.Dir)
		if err := s.lock.acquire(); err != nil {
			return nil, err
		}
	}

	ok := false
	defer func() {
		if !ok {
			_ = s.closeResources()
		}
	}()

	var recordsPath, fullTextBase string
	if opts.Dir != "" {
		recordsPath = filepath.Join(opts.Dir, store.RecordsFileName)
		fullTextBase = store.FullTextBasePath(opts.Dir)
	}

	records, err := store.NewSQLiteRecordStore(recordsPath, opts.MaxConnections)
	if err != nil {
		return nil, err
	}
	s.records = records

	s.fulltext, err = store.NewFullTextIndex(fullTextBase, store.DefaultFullTextConfig(), opts.FullText)
	if err != nil {
		return nil, docerrors.StorageError("open full-text index", err)
	}

	if opts.CacheSize > 0 {
		s.cache, err = lru.New[string, *store.Record](opts.CacheSize)
		if err != nil {
			return nil, docerrors.InternalError("create record cache", err)
		}
	}

	if err := s.loadIndex(ctx); err != nil {
		return nil, err
	}

	if s.fulltext != nil {
		s.syncFullText(ctx)
	}

	count, err := s.records.Count(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		st, err := refreshState(opts.Dir, version.SystemVersion, count, s.now())
		if err != nil {
			slog.Warn("state_write_failed",
				slog.String("dir", opts.Dir),
				slog.String("error", err.Error()))
		}
		s.state = st
	}

	slog.Info("memory_store_opened",
		slog.String("dir", opts.Dir),
		slog.Int("documents", count),
		slog.Int("vectors", s.index.Len()),
		slog.String("backend", opts.Backend),
		slog.String("fulltext", opts.FullText))

	ok = true
	return s, nil
}

// loadIndex fills the vector index from durable embeddings in insertion order.
func (s *Store) loadIndex(ctx context.Context) error {
	index, idToSlot, slotToID, err := s.buildIndex(ctx)
	if err != nil {
		return err
	}
	s.index, s.idToSlot, s.slotToID = index, idToSlot, slotToID
	return nil
}

// buildIndex creates a fresh index from the record store.
func (s *Store) buildIndex(ctx context.Context) (store.VectorIndex, map[string]int, map[int]string, error) {
	index, err := store.NewVectorIndex(s.opts.Backend, s.opts.Dimensions, s.opts.HNSW)
	if err != nil {
		return nil, nil, nil, docerrors.ConfigError("invalid vector index settings", err)
	}
	idToSlot := make(map[string]int)
	slotToID := make(map[int]string)

	err = s.records.Embeddings(ctx, func(id string, vec []float32) error {
		if len(vec) != s.opts.Dimensions {
			return docerrors.DimensionError(s.opts.Dimensions, len(vec)).
				WithDetail("id", id).
				WithSuggestion("Open the store with the dimension it was created with")
		}
		unit, ok := Normalize(vec)
		if !ok {
			slog.Warn("embedding_skipped", slog.String("id", id), slog.String("reason", "zero or non-finite vector"))
			return nil
		}
		slot, err := index.Add(unit)
		if err != nil {
			return err
		}
		idToSlot[id] = slot
		slotToID[slot] = id
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return index, idToSlot, slotToID, nil
}

// syncFullText reindexes records the full-text index is missing. It runs at
// open so switching backends or losing the index file heals itself.
func (s *Store) syncFullText(ctx context.Context) {
	count, err := s.records.Count(ctx)
	if err != nil || count == s.fulltext.Count() {
		return
	}

	result, err := s.checkLocked(ctx)
	if err != nil {
		slog.Warn("fulltext_sync_failed", slog.String("error", err.Error()))
		return
	}
	if err := s.repairLocked(ctx, result.Issues); err != nil {
		slog.Warn("fulltext_sync_failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("fulltext_synced", slog.Int("issues", len(result.Issues)))
}

// Store persists rec under a fresh id and indexes its embedding.
// The embedding is required and is stored normalized to unit length.
func (s *Store) Store(ctx context.Context, rec *store.Record) (string, error) {
	if rec == nil {
		return "", docerrors.ValidationError("record is required", nil)
	}
	vec, err := s.prepareEmbedding(rec.Embedding)
	if err != nil {
		return "", err
	}

	r := rec.Clone()
	r.ID = uuid.NewString()
	r.Embedding = vec

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errClosed
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}

	if err := s.records.Put(ctx, r); err != nil {
		return "", err
	}

	slot, err := s.index.Add(vec)
	if err != nil {
		if _, delErr := s.records.Delete(ctx, r.ID); delErr != nil {
			slog.Error("store_rollback_failed", slog.String("id", r.ID), slog.String("error", delErr.Error()))
		}
		return "", docerrors.Wrap(docerrors.ErrCodeIndexFailed, err)
	}
	s.idToSlot[r.ID] = slot
	s.slotToID[slot] = r.ID

	s.indexFullText(ctx, r)

	slog.Debug("record_stored",
		slog.String("id", r.ID),
		slog.Int("slot", slot),
		slog.String("source_file", r.SourceFile))

	return r.ID, nil
}

// Retrieve returns a copy of the record. An unknown id is (nil, false, nil).
func (s *Store) Retrieve(ctx context.Context, id string) (*store.Record, bool, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(id); ok {
			return rec.Clone(), true, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, errClosed
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	s.cacheAdd(rec)
	return rec, true, nil
}

// Update overwrites the supplied fields of a record. A new embedding moves
// the record to a fresh slot and tombstones the old one. Unknown ids
// return (false, nil).
func (s *Store) Update(ctx context.Context, id string, u Update) (bool, error) {
	var vec []float32
	if u.Embedding != nil {
		var err error
		if vec, err = s.prepareEmbedding(u.Embedding); err != nil {
			return false, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	u.apply(rec)
	if vec != nil {
		rec.Embedding = vec
	}
	if err := s.records.Put(ctx, rec); err != nil {
		return false, err
	}

	if vec != nil {
		slot, err := s.index.Add(vec)
		if err != nil {
			return false, docerrors.Wrap(docerrors.ErrCodeIndexFailed, err)
		}
		if old, ok := s.idToSlot[id]; ok {
			s.index.Remove(old)
			delete(s.slotToID, old)
		}
		s.idToSlot[id] = slot
		s.slotToID[slot] = id
	}

	if u.touchesText() {
		s.indexFullText(ctx, rec)
	}
	s.cacheEvict(id)
	s.maybeCompact(ctx)

	slog.Debug("record_updated", slog.String("id", id), slog.Bool("embedding", vec != nil))
	return true, nil
}

// Delete removes the record and tombstones its slot, so no later search
// can surface it. It reports whether the record existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}

	removed, err := s.records.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	if slot, ok := s.idToSlot[id]; ok {
		s.index.Remove(slot)
		delete(s.slotToID, slot)
		delete(s.idToSlot, id)
	}
	s.cacheEvict(id)
	if s.fulltext != nil {
		if err := s.fulltext.Delete(ctx, []string{id}); err != nil {
			slog.Warn("fulltext_delete_failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	s.maybeCompact(ctx)

	if removed {
		slog.Debug("record_deleted", slog.String("id", id))
	}
	return removed, nil
}

// GetAll materializes every record ordered by id. Use on small corpora only.
func (s *Store) GetAll(ctx context.Context) ([]*store.Record, error) {
	return s.records.List(ctx, 0, 0)
}

// List returns a page of records ordered by id.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*store.Record, error) {
	return s.records.List(ctx, limit, offset)
}

// Count returns the durable record count.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.records.Count(ctx)
}

// SearchVector returns up to k live hits for q, which is normalized first.
// A zero query has no direction and matches nothing.
func (s *Store) SearchVector(q []float32, k int) ([]VectorHit, error) {
	if len(q) != s.opts.Dimensions {
		return nil, docerrors.DimensionError(s.opts.Dimensions, len(q))
	}
	unit, ok := Normalize(q)
	if !ok || k <= 0 {
		return []VectorHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}

	slots, err := s.index.Search(unit, k)
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(slots))
	for _, h := range slots {
		id, ok := s.slotToID[h.Slot]
		if !ok {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Score: h.Score})
	}
	return hits, nil
}

// IndexSize returns the number of live vectors.
func (s *Store) IndexSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

// Dimensions returns the fixed embedding width.
func (s *Store) Dimensions() int {
	return s.opts.Dimensions
}

// Dir returns the storage directory ("" for in-memory).
func (s *Store) Dir() string {
	return s.opts.Dir
}

// MatchContent returns records whose content or title contains query.
func (s *Store) MatchContent(ctx context.Context, query string, limit int) ([]*store.Record, error) {
	return s.records.SearchContent(ctx, query, limit)
}

// FindByTags returns records carrying any of tags, ordered by id.
func (s *Store) FindByTags(ctx context.Context, tags []string, limit int) ([]*store.Record, error) {
	return s.records.FindByTags(ctx, tags, limit)
}

// FindBySource returns records ingested from source, ordered by id.
func (s *Store) FindBySource(ctx context.Context, source string) ([]*store.Record, error) {
	return s.records.FindBySource(ctx, source)
}

// FullText runs a BM25 query against the full-text index.
func (s *Store) FullText(ctx context.Context, query string, limit int) ([]*store.FullTextResult, error) {
	if s.fulltext == nil {
		return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "full-text index is disabled", nil).
			WithSuggestion("Set index.fulltext to 'sqlite' or 'bleve'")
	}
	results, err := s.fulltext.Search(ctx, query, limit)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.ErrCodeSearchFailed, err)
	}
	return results, nil
}

// HasFullText reports whether a full-text index is configured.
func (s *Store) HasFullText() bool {
	return s.fulltext != nil
}

// Stats reports counts for status output.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.records.Count(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{
		Dir:             s.opts.Dir,
		Documents:       count,
		IndexSize:       s.index.Len(),
		Slots:           s.index.Slots(),
		Tombstones:      s.index.Tombstones(),
		Dimensions:      s.opts.Dimensions,
		Backend:         s.opts.Backend,
		FullTextBackend: s.opts.FullText,
	}
	if s.fulltext != nil {
		st.FullTextDocs = s.fulltext.Count()
	}
	return st, nil
}

// State returns the system state written at open, or nil for in-memory stores.
func (s *Store) State() *SystemState {
	if s.state == nil {
		return nil
	}
	st := *s.state
	return &st
}

// Close releases the index, the database and the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeResources()
}

func (s *Store) closeResources() error {
	var firstErr error
	if s.fulltext != nil {
		if err := s.fulltext.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.records != nil {
		if err := s.records.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	if s.lock != nil {
		if err := s.lock.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// prepareEmbedding validates the width and returns a normalized copy.
func (s *Store) prepareEmbedding(vec []float32) ([]float32, error) {
	if len(vec) != s.opts.Dimensions {
		return nil, docerrors.DimensionError(s.opts.Dimensions, len(vec))
	}
	unit, ok := Normalize(vec)
	if !ok {
		return nil, docerrors.ValidationError("embedding must be a non-zero finite vector", nil)
	}
	return unit, nil
}

func (s *Store) indexFullText(ctx context.Context, rec *store.Record) {
	if s.fulltext == nil {
		return
	}
	doc := &store.Document{ID: rec.ID, Title: rec.Title, Content: rec.Content}
	if err := s.fulltext.Index(ctx, []*store.Document{doc}); err != nil {
		slog.Warn("fulltext_index_failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
	}
}

// cacheAdd caches a record decoded from durable storage; writes evict.
func (s *Store) cacheAdd(rec *store.Record) {
	if s.cache != nil {
		s.cache.Add(rec.ID, rec.Clone())
	}
}

func (s *Store) cacheEvict(id string) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}

// maybeCompact rebuilds the index once tombstones pass the configured ratio.
// Callers hold mu.
func (s *Store) maybeCompact(ctx context.Context) {
	tombstones := s.index.Tombstones()
	slots := s.index.Slots()
	if slots == 0 || tombstones < s.opts.CompactMinTombstones {
		return
	}
	if float64(tombstones)/float64(slots) <= s.opts.CompactThreshold {
		return
	}
	if _, err := s.compactLocked(ctx); err != nil {
		slog.Warn("auto_compact_failed", slog.String("error", err.Error()))
	}
}

// Normalize returns v scaled to unit length, accumulating in float64.
// It reports false for zero or non-finite vectors.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
