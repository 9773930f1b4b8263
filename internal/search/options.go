package search

import (
	"slices"

	"github.com/Aman-CERP/docmemory/internal/store"
)

// FilterFunc checks if a record matches filter criteria.
type FilterFunc func(rec *store.Record) bool

// buildFilters creates filter functions for the set fields of f.
func buildFilters(f Filters) []FilterFunc {
	var filters []FilterFunc

	if f.DocumentType != "" {
		filters = append(filters, documentTypeFilter(f.DocumentType))
	}
	if len(f.Tags) > 0 {
		filters = append(filters, anyTagFilter(f.Tags))
	}
	if f.SourceFile != "" {
		filters = append(filters, sourceFileFilter(f.SourceFile))
	}

	return filters
}

// matchesAllFilters checks if a record passes all filters (AND logic).
func matchesAllFilters(rec *store.Record, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(rec) {
			return false
		}
	}
	return true
}

func documentTypeFilter(docType string) FilterFunc {
	return func(rec *store.Record) bool {
		return rec.DocumentType == docType
	}
}

// anyTagFilter matches exact tag tokens, never substrings.
func anyTagFilter(tags []string) FilterFunc {
	return func(rec *store.Record) bool {
		return slices.ContainsFunc(tags, rec.HasTag)
	}
}

func sourceFileFilter(source string) FilterFunc {
	return func(rec *store.Record) bool {
		return rec.SourceFile == source
	}
}
