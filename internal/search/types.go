// Package search implements semantic, keyword, hybrid, tag and related
// retrieval over a memory store.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/docmemory/internal/config"
	"github.com/Aman-CERP/docmemory/internal/memory"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// Memory is the subset of the memory store the engine reads from.
type Memory interface {
	Retrieve(ctx context.Context, id string) (*store.Record, bool, error)
	SearchVector(q []float32, k int) ([]memory.VectorHit, error)
	IndexSize() int
	Dimensions() int
	MatchContent(ctx context.Context, query string, limit int) ([]*store.Record, error)
	FindByTags(ctx context.Context, tags []string, limit int) ([]*store.Record, error)
	FindBySource(ctx context.Context, source string) ([]*store.Record, error)
	FullText(ctx context.Context, query string, limit int) ([]*store.FullTextResult, error)
}

var _ Memory = (*memory.Store)(nil)

// Filters restrict semantic results. Empty fields are ignored; set fields
// combine with AND logic.
type Filters struct {
	DocumentType string
	// Tags matches when the record carries any of them.
	Tags       []string
	SourceFile string
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.DocumentType == "" && len(f.Tags) == 0 && f.SourceFile == ""
}

// Result pairs a record with its score.
type Result struct {
	Record *store.Record
	Score  float64
}

// Weights configures the relative importance of semantic vs keyword scores
// in hybrid search.
type Weights struct {
	// Semantic is the weight for vector similarity (0-1, default: 0.7).
	Semantic float64

	// Keyword is the weight for keyword matching (0-1, default: 0.3).
	Keyword float64
}

// DefaultWeights returns the default hybrid weights.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Keyword: 0.3}
}

// RerankWeights blend similarity, recency and metadata richness.
type RerankWeights struct {
	Similarity   float64
	Recency      float64
	Richness     float64
	HalfLifeDays float64
}

// DefaultRerankWeights returns 0.7/0.2/0.1 with a 30-day decay constant.
func DefaultRerankWeights() RerankWeights {
	return RerankWeights{
		Similarity:   0.7,
		Recency:      0.2,
		Richness:     0.1,
		HalfLifeDays: 30,
	}
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit applies when a request leaves Limit at 0 (default: 10).
	DefaultLimit int

	// MaxLimit caps any requested limit (default: 100).
	MaxLimit int

	Weights Weights
	Rerank  RerankWeights
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit: 10,
		MaxLimit:     100,
		Weights:      DefaultWeights(),
		Rerank:       DefaultRerankWeights(),
	}
}

// ConfigFromSettings maps the search section of the config file.
func ConfigFromSettings(sc config.SearchConfig) EngineConfig {
	cfg := DefaultConfig()
	if sc.DefaultLimit > 0 {
		cfg.DefaultLimit = sc.DefaultLimit
	}
	cfg.Weights = Weights{Semantic: sc.SemanticWeight, Keyword: sc.KeywordWeight}
	cfg.Rerank = RerankWeights{
		Similarity:   sc.Rerank.Similarity,
		Recency:      sc.Rerank.Recency,
		Richness:     sc.Rerank.Richness,
		HalfLifeDays: sc.Rerank.HalfLifeDays,
	}
	if cfg.Rerank.HalfLifeDays <= 0 {
		cfg.Rerank.HalfLifeDays = DefaultRerankWeights().HalfLifeDays
	}
	return cfg
}

// Type selects the retrieval mode for Search.
type Type string

const (
	TypeSemantic Type = "semantic"
	TypeKeyword  Type = "keyword"
	TypeHybrid   Type = "hybrid"
	TypeFullText Type = "fulltext"
)

// ParseType maps a user string to a Type. Unknown values fall back to hybrid.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeSemantic:
		return TypeSemantic
	case TypeKeyword:
		return TypeKeyword
	case TypeFullText, "bm25":
		return TypeFullText
	default:
		return TypeHybrid
	}
}

// Request is a single dispatch through Search.
type Request struct {
	Query string
	Type  Type
	// Limit is the maximum number of hits (0 = engine default).
	Limit int
	// Filters apply to semantic search only.
	Filters Filters
	// Rerank enables the blended semantic score.
	Rerank bool
	// Weights overrides the configured hybrid weights.
	Weights *Weights
}

// Hit is a formatted search result.
type Hit struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Snippet      string    `json:"content"`
	Score        float64   `json:"score"`
	Tags         []string  `json:"tags"`
	DocumentType string    `json:"document_type,omitempty"`
	SourceFile   string    `json:"source_file"`
	Timestamp    time.Time `json:"timestamp"`
	Summary      string    `json:"summary,omitempty"`
	PageNumbers  []int     `json:"page_numbers,omitempty"`
}

// Response is the dispatcher output.
type Response struct {
	Query    string        `json:"query"`
	Type     Type          `json:"type"`
	Hits     []Hit         `json:"results"`
	Duration time.Duration `json:"duration_ns"`
}
