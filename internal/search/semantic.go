package search

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// SemanticSearch ranks records by cosine similarity to queryVec.
//
// It over-fetches min(2*limit, index size) candidates so that filtering
// still leaves enough to fill limit, then optionally reranks with the
// blended score before truncating.
func (e *Engine) SemanticSearch(ctx context.Context, queryVec []float32, limit int, filters Filters, rerank bool) ([]Result, error) {
	if dims := e.memory.Dimensions(); len(queryVec) != dims {
		return nil, docerrors.DimensionError(dims, len(queryVec))
	}
	if limit <= 0 {
		return []Result{}, nil
	}

	size := e.memory.IndexSize()
	if size == 0 {
		return []Result{}, nil
	}

	hits, err := e.memory.SearchVector(queryVec, min(2*limit, size))
	if err != nil {
		return nil, err
	}

	checks := buildFilters(filters)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		rec, ok, err := e.memory.Retrieve(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Deleted between the index query and the lookup.
			continue
		}
		if !matchesAllFilters(rec, checks) {
			continue
		}
		results = append(results, Result{Record: rec, Score: hit.Score})
	}

	sortByScore(results)

	if rerank {
		e.rerank(results)
	}

	return truncate(results, limit), nil
}

// rerank replaces each score with the blended score and re-sorts.
func (e *Engine) rerank(results []Result) {
	w := e.config.Rerank
	now := e.now()

	for i := range results {
		rec := results[i].Record
		results[i].Score = w.Similarity*results[i].Score +
			w.Recency*recencyFactor(rec.Timestamp, now, w.HalfLifeDays) +
			w.Richness*richnessFactor(rec)
	}
	sortByScore(results)
}

// recencyFactor decays exponentially with age in days, clamped to [0,1].
// Timestamps in the future score 1.
func recencyFactor(ts, now time.Time, decayDays float64) float64 {
	ageDays := now.Sub(ts).Hours() / 24
	return clamp01(math.Exp(-ageDays / decayDays))
}

// richnessFactor rewards tagged and annotated records: 0.1 per tag and
// 0.2 per metadata key, capped at 1.
func richnessFactor(rec *store.Record) float64 {
	return min(1.0, 0.1*float64(len(rec.Tags))+0.2*float64(len(rec.Metadata)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}

// sortByScore orders descending; equal scores keep their current order.
func sortByScore(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

func truncate(results []Result, limit int) []Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
