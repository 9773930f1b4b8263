package search

import (
	"context"
	"strings"
)

// KeywordSearch scores substring matches by normalized query frequency.
//
// Up to 2*limit candidates whose content or title contains the query are
// fetched shortest content first. Each scores
// min(1, occurrences / words), with occurrences tripled for phrase queries.
// Equal scores keep fetch order.
func (e *Engine) KeywordSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Result{}, nil
	}

	recs, err := e.memory.MatchContent(ctx, query, 2*limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(recs))
	for _, rec := range recs {
		results = append(results, Result{Record: rec, Score: keywordScore(query, rec.Content)})
	}

	sortByScore(results)
	return truncate(results, limit), nil
}

// keywordScore counts case-insensitive occurrences of query in content.
// A query containing a space counts each phrase hit three times.
func keywordScore(query, content string) float64 {
	lowered := strings.ToLower(content)
	words := len(strings.Fields(lowered))
	if words == 0 {
		return 0
	}

	count := strings.Count(lowered, strings.ToLower(query))
	if strings.Contains(query, " ") {
		count *= 3
	}
	return min(1.0, float64(count)/float64(words))
}
