package search

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// fusedScore holds one id's per-modality scores during fusion.
type fusedScore struct {
	result   Result
	semantic float64
	keyword  float64
	combined float64
}

// HybridSearch combines semantic and keyword scores by weighted sum:
//
//	combined = semanticWeight*semantic + keywordWeight*keyword
//
// Both modalities run concurrently at 2*limit. The union of their ids is
// scored, a score missing from one side counting as 0. If one modality
// fails the other's results are still returned; only both failing is an
// error.
func (e *Engine) HybridSearch(ctx context.Context, query string, queryVec []float32, semanticWeight, keywordWeight float64, limit int) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}

	semResults, kwResults, err := e.parallelSearch(ctx, query, queryVec, 2*limit)
	if err != nil {
		return nil, err
	}

	fused := fuse(semResults, kwResults, semanticWeight, keywordWeight)
	return truncate(fused, limit), nil
}

// parallelSearch runs both modalities. Errors from one side are logged and
// swallowed so the other can continue.
func (e *Engine) parallelSearch(ctx context.Context, query string, queryVec []float32, limit int) (
	semResults []Result,
	kwResults []Result,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var semErr, kwErr error

	g.Go(func() error {
		semResults, semErr = e.SemanticSearch(gctx, queryVec, limit, Filters{}, true)
		return nil
	})

	g.Go(func() error {
		kwResults, kwErr = e.KeywordSearch(gctx, query, limit)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}

	if semErr != nil && kwErr != nil {
		return nil, nil, errors.Join(semErr, kwErr)
	}
	if semErr != nil {
		slog.Warn("semantic_search_failed", slog.String("error", semErr.Error()))
	}
	if kwErr != nil {
		slog.Warn("keyword_search_failed", slog.String("error", kwErr.Error()))
	}

	return semResults, kwResults, nil
}

// fuse scores the union of ids, descending by combined score with ties
// broken by id.
func fuse(semantic, keyword []Result, semanticWeight, keywordWeight float64) []Result {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []Result{}
	}

	scores := make(map[string]*fusedScore, len(semantic)+len(keyword))
	get := func(r Result) *fusedScore {
		if f, ok := scores[r.Record.ID]; ok {
			return f
		}
		f := &fusedScore{result: r}
		scores[r.Record.ID] = f
		return f
	}

	for _, r := range semantic {
		get(r).semantic = r.Score
	}
	for _, r := range keyword {
		get(r).keyword = r.Score
	}

	fused := make([]*fusedScore, 0, len(scores))
	for _, f := range scores {
		f.combined = semanticWeight*f.semantic + keywordWeight*f.keyword
		fused = append(fused, f)
	}

	slices.SortFunc(fused, func(a, b *fusedScore) int {
		if c := cmp.Compare(b.combined, a.combined); c != 0 {
			return c
		}
		return strings.Compare(a.result.Record.ID, b.result.Record.ID)
	})

	results := make([]Result, len(fused))
	for i, f := range fused {
		results[i] = Result{Record: f.result.Record, Score: f.combined}
	}
	return results
}
