// Package store provides durable record storage (SQLite), vector indexes
// (flat and HNSW) and full-text indexes (SQLite FTS5 and Bleve).
// This is the persistence layer underneath the memory store.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
)

// Record is the atomic retrievable unit, one per chunk.
type Record struct {
	ID           string
	Title        string
	Content      string
	SourceFile   string
	DocumentType string
	Embedding    []float32
	Timestamp    time.Time
	Tags         []string
	// Relationships is reserved; it round-trips but no writer sets it.
	Relationships map[string]float64
	Metadata      map[string]any
	Summary       string
	PageNumbers   []int
}

// Clone returns a deep copy of the record. Nested metadata values are
// copied one level deep, which covers every value the JSON codec produces.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Embedding = slices.Clone(r.Embedding)
	c.Tags = slices.Clone(r.Tags)
	c.PageNumbers = slices.Clone(r.PageNumbers)
	c.Relationships = maps.Clone(r.Relationships)
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = cloneValue(v)
		}
	}
	return &c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		return slices.Clone(t)
	case map[string]any:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// HasTag reports whether the record carries tag as an exact token.
func (r *Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// RecordStore persists records and their embeddings.
// Every method is safe for concurrent use; each call checks out its own
// connection from the pool.
type RecordStore interface {
	// Put inserts or replaces a record by id.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record, or (nil, nil) when the id is unknown.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes the record. It reports whether a row existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns records ordered by id. A non-positive limit returns all.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// IDs returns every record id in ascending order.
	IDs(ctx context.Context) ([]string, error)

	// Embeddings streams (id, embedding) pairs in insertion order.
	Embeddings(ctx context.Context, fn func(id string, vec []float32) error) error

	// SearchContent returns records whose content or title contains query,
	// case-insensitively, shortest content first.
	SearchContent(ctx context.Context, query string, limit int) ([]*Record, error)

	// FindByTags returns records carrying any of tags, ordered by id.
	FindByTags(ctx context.Context, tags []string, limit int) ([]*Record, error)

	// FindBySource returns records whose source_file equals source, ordered by id.
	FindBySource(ctx context.Context, source string) ([]*Record, error)

	Close() error
}

// SlotScore is a vector index hit.
type SlotScore struct {
	Slot  int
	Score float64
}

// VectorIndex holds unit vectors in append-only slots.
// Slots increase monotonically and are never reused; Remove tombstones.
// An index may start at a base slot above zero so that a rebuilt index
// continues numbering where its predecessor stopped.
type VectorIndex interface {
	// Add appends a vector and returns its slot.
	Add(vec []float32) (int, error)

	// Remove tombstones a slot. It reports whether the slot was live.
	Remove(slot int) bool

	// Search returns up to k live slots by cosine similarity, best first,
	// ties broken by lower slot.
	Search(query []float32, k int) ([]SlotScore, error)

	// Len returns the number of live slots.
	Len() int

	// Vector returns a copy of the vector at slot, or nil if it is not live.
	Vector(slot int) []float32

	// Slots returns the number of slots this index holds, live or removed.
	Slots() int

	// NextSlot returns the slot the next Add will assign.
	NextSlot() int

	// Tombstones returns the number of removed slots.
	Tombstones() int

	// Dimensions returns the fixed vector width.
	Dimensions() int
}

// Document is the unit indexed for full-text search.
type Document struct {
	ID      string
	Title   string
	Content string
}

// FullTextResult is a single BM25-ranked hit.
type FullTextResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// FullTextIndex provides BM25-ranked lexical search.
type FullTextIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching any query term, best first.
	Search(ctx context.Context, query string, limit int) ([]*FullTextResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all document IDs in the index (for consistency checks).
	AllIDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// FullTextConfig configures a full-text index.
type FullTextConfig struct {
	// StopWords are dropped at index and query time.
	StopWords []string

	// MinTokenLength is the minimum token length in runes (default: 2).
	MinTokenLength int
}

// DefaultFullTextConfig returns the default full-text configuration.
func DefaultFullTextConfig() FullTextConfig {
	return FullTextConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains common English function words.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with",
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// dimensionError wraps ErrDimensionMismatch in the coded error.
func dimensionError(expected, got int) error {
	cause := ErrDimensionMismatch{Expected: expected, Got: got}
	return docerrors.New(docerrors.ErrCodeDimensionMismatch, cause.Error(), cause).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}
