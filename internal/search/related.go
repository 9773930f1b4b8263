package search

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"github.com/Aman-CERP/docmemory/internal/store"
)

// SearchByTags returns records carrying at least one of tags, each once,
// ordered by id.
func (e *Engine) SearchByTags(ctx context.Context, tags []string, limit int) ([]*store.Record, error) {
	tags = slices.DeleteFunc(slices.Clone(tags), func(t string) bool { return strings.TrimSpace(t) == "" })
	if len(tags) == 0 || limit <= 0 {
		return []*store.Record{}, nil
	}

	recs, err := e.memory.FindByTags(ctx, tags, limit)
	if err != nil {
		return nil, err
	}

	recs = dedupeByID(recs)
	slices.SortFunc(recs, func(a, b *store.Record) int { return strings.Compare(a.ID, b.ID) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Related ranks records that share a tag or the source file with id by the
// cosine similarity of their embeddings. An unknown id yields nothing.
func (e *Engine) Related(ctx context.Context, id string, limit int) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}

	src, ok, err := e.memory.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Result{}, nil
	}

	var pool []*store.Record
	if len(src.Tags) > 0 {
		byTag, err := e.memory.FindByTags(ctx, src.Tags, 0)
		if err != nil {
			return nil, err
		}
		pool = append(pool, byTag...)
	}
	if src.SourceFile != "" {
		bySource, err := e.memory.FindBySource(ctx, src.SourceFile)
		if err != nil {
			return nil, err
		}
		pool = append(pool, bySource...)
	}

	pool = slices.DeleteFunc(dedupeByID(pool), func(r *store.Record) bool { return r.ID == src.ID })

	results := make([]Result, len(pool))
	for i, rec := range pool {
		results[i] = Result{Record: rec, Score: cosine(src.Embedding, rec.Embedding)}
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Record.ID, b.Record.ID)
	})

	return truncate(results, limit), nil
}

// FullTextSearch returns BM25-ranked records from the full-text index.
func (e *Engine) FullTextSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Result{}, nil
	}

	hits, err := e.memory.FullText(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		rec, ok, err := e.memory.Retrieve(ctx, hit.DocID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, Result{Record: rec, Score: hit.Score})
	}
	return results, nil
}

// dedupeByID keeps the first occurrence of each id.
func dedupeByID(recs []*store.Record) []*store.Record {
	seen := make(map[string]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// cosine returns 0 when either vector is empty, zero or of a different width.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
