package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/store"
	"github.com/Aman-CERP/docmemory/internal/telemetry"
)

// Snippet lengths in runes.
const (
	SearchSnippetLen  = 200
	RelatedSnippetLen = 150
)

// Search embeds the query when the mode needs it, dispatches by type and
// formats hits. Without an embedder, or when embedding fails, semantic and
// hybrid requests run as keyword search.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, docerrors.New(docerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	limit := e.normalizeLimit(req.Limit)
	searchType := ParseType(string(req.Type))

	weights := e.config.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}

	var queryVec []float32
	if searchType == TypeSemantic || searchType == TypeHybrid {
		vec, err := e.embedQuery(ctx, query)
		if err != nil {
			slog.Warn("query_embedding_failed",
				slog.String("type", string(searchType)),
				slog.String("error", err.Error()))
			searchType = TypeKeyword
		}
		queryVec = vec
	}

	var (
		results []Result
		err     error
	)
	switch searchType {
	case TypeSemantic:
		results, err = e.SemanticSearch(ctx, queryVec, limit, req.Filters, req.Rerank)
	case TypeKeyword:
		results, err = e.KeywordSearch(ctx, query, limit)
	case TypeFullText:
		results, err = e.FullTextSearch(ctx, query, limit)
	default:
		results, err = e.HybridSearch(ctx, query, queryVec, weights.Semantic, weights.Keyword, limit)
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:    query,
		Type:     searchType,
		Hits:     ToHits(results, SearchSnippetLen),
		Duration: time.Since(start),
	}
	e.recordMetrics(query, telemetry.SearchType(searchType), len(resp.Hits), resp.Duration)
	return resp, nil
}

// RelatedHits runs Related and formats with the shorter snippet.
func (e *Engine) RelatedHits(ctx context.Context, id string, limit int) ([]Hit, error) {
	start := time.Now()
	results, err := e.Related(ctx, id, e.normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	hits := ToHits(results, RelatedSnippetLen)
	e.recordMetrics(id, telemetry.SearchTypeRelated, len(hits), time.Since(start))
	return hits, nil
}

// TagHits runs SearchByTags and formats with the shorter snippet. Tag hits
// carry no score.
func (e *Engine) TagHits(ctx context.Context, tags []string, limit int) ([]Hit, error) {
	start := time.Now()
	recs, err := e.SearchByTags(ctx, tags, e.normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(recs))
	for i, rec := range recs {
		hits[i] = toHit(rec, 0, RelatedSnippetLen)
	}
	e.recordMetrics(strings.Join(tags, " "), telemetry.SearchTypeTags, len(hits), time.Since(start))
	return hits, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, docerrors.New(docerrors.ErrCodeEmbeddingFailed, "no embedder configured", nil)
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.ErrCodeEmbeddingFailed, err)
	}
	return vec, nil
}

// ToHits formats results with snippets of at most snippetLen runes.
func ToHits(results []Result, snippetLen int) []Hit {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = toHit(r.Record, r.Score, snippetLen)
	}
	return hits
}

func toHit(rec *store.Record, score float64, snippetLen int) Hit {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return Hit{
		ID:           rec.ID,
		Title:        rec.Title,
		Snippet:      Snippet(rec.Content, snippetLen),
		Score:        score,
		Tags:         tags,
		DocumentType: rec.DocumentType,
		SourceFile:   rec.SourceFile,
		Timestamp:    rec.Timestamp,
		Summary:      rec.Summary,
		PageNumbers:  rec.PageNumbers,
	}
}

// Snippet truncates content to n runes and appends "..." when it cut.
func Snippet(content string, n int) string {
	runes := 0
	for i := range content {
		if runes == n {
			return content[:i] + "..."
		}
		runes++
	}
	return content
}
