package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullTextBackends runs each test against both implementations.
func fullTextBackends(t *testing.T) map[string]FullTextIndex {
	t.Helper()
	sqliteIdx, err := NewSQLiteFTSIndex("", DefaultFullTextConfig())
	require.NoError(t, err)
	bleveIdx, err := NewBleveIndex("", DefaultFullTextConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqliteIdx.Close()
		_ = bleveIdx.Close()
	})
	return map[string]FullTextIndex{"sqlite": sqliteIdx, "bleve": bleveIdx}
}

var fullTextCorpus = []*Document{
	{ID: "d1", Title: "Gardening", Content: "Tomatoes need full sun and regular watering"},
	{ID: "d2", Title: "Cooking", Content: "Roast tomatoes with garlic and olive oil"},
	{ID: "d3", Title: "Astronomy", Content: "Jupiter has dozens of moons"},
}

func TestFullTextIndex_IndexAndSearch(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			// Given: a small prose corpus
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, fullTextCorpus))
			assert.Equal(t, 3, idx.Count())

			// When: searching a term in two documents
			results, err := idx.Search(ctx, "tomatoes", 10)
			require.NoError(t, err)

			// Then: both match with positive scores
			require.Len(t, results, 2)
			ids := []string{results[0].DocID, results[1].DocID}
			assert.ElementsMatch(t, []string{"d1", "d2"}, ids)
			for _, r := range results {
				assert.Greater(t, r.Score, 0.0)
				assert.Contains(t, r.MatchedTerms, "tomatoes")
			}
		})
	}
}

func TestFullTextIndex_MatchesTitle(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, fullTextCorpus))

			results, err := idx.Search(ctx, "ASTRONOMY", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "d3", results[0].DocID)
		})
	}
}

func TestFullTextIndex_StopWordsAndSyntaxAreInert(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, fullTextCorpus))

			tests := []string{"the and of", "", `"unbalanced`, "NEAR(", "*"}
			for _, q := range tests {
				results, err := idx.Search(ctx, q, 10)
				require.NoError(t, err, "query %q", q)
				assert.Empty(t, results, "query %q", q)
			}
		})
	}
}

func TestFullTextIndex_ReindexReplaces(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, fullTextCorpus))

			// When: d3 is rewritten
			require.NoError(t, idx.Index(ctx, []*Document{{ID: "d3", Content: "comets and asteroids"}}))

			// Then: old terms are gone and the count is unchanged
			results, err := idx.Search(ctx, "jupiter", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "comets", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, 3, idx.Count())
		})
	}
}

func TestFullTextIndex_DeleteAndAllIDs(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, fullTextCorpus))

			require.NoError(t, idx.Delete(ctx, []string{"d2"}))

			ids, err := idx.AllIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"d1", "d3"}, ids)

			results, err := idx.Search(ctx, "garlic", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestFullTextIndex_ClosedIndexErrors(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close(), "close is idempotent")

			_, err := idx.Search(context.Background(), "tomatoes", 10)
			assert.Error(t, err)
			assert.Zero(t, idx.Count())
		})
	}
}

func TestNewFullTextIndex_Backends(t *testing.T) {
	dir := t.TempDir()
	base := FullTextBasePath(dir)

	tests := []struct {
		backend string
		want    FullTextBackend
		wantNil bool
		wantErr bool
	}{
		{backend: "sqlite", want: FullTextBackendSQLite},
		{backend: "none", wantNil: true},
		{backend: "lucene", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			idx, err := NewFullTextIndex(base, DefaultFullTextConfig(), tt.backend)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, idx)
				return
			}
			defer func() { _ = idx.Close() }()
			assert.Equal(t, tt.want, DetectFullTextBackend(base))
		})
	}
}

func TestNewFullTextIndex_BleveOnDisk(t *testing.T) {
	// Given: a persisted bleve index
	base := FullTextBasePath(t.TempDir())
	idx, err := NewFullTextIndex(base, DefaultFullTextConfig(), "bleve")
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), fullTextCorpus))
	require.NoError(t, idx.Close())

	// When: reopening it
	assert.Equal(t, FullTextBackendBleve, DetectFullTextBackend(base))
	idx, err = NewFullTextIndex(base, DefaultFullTextConfig(), "bleve")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: the documents are still searchable
	results, err := idx.Search(context.Background(), "moons", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d3", results[0].DocID)
}

func TestNewSQLiteFTSIndex_ClearsCorruptFile(t *testing.T) {
	// Given: garbage where the database should be
	path := filepath.Join(t.TempDir(), "fulltext.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

	// When: opening
	idx, err := NewSQLiteFTSIndex(path, DefaultFullTextConfig())

	// Then: a fresh empty index is created
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	assert.Zero(t, idx.Count())
}
