package memory

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/store"
)

const testDims = 4

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testOptions(dir string) Options {
	opts := DefaultOptions(dir)
	opts.Dimensions = testDims
	opts.MaxConnections = 2
	opts.CacheSize = 16
	return opts
}

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := OpenWithClock(context.Background(), opts, func() time.Time { return fixedNow })
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecord(content string, vec ...float32) *store.Record {
	return &store.Record{
		Title:        "t",
		Content:      content,
		SourceFile:   "src.txt",
		DocumentType: "txt",
		Embedding:    vec,
		Tags:         []string{"one", "two"},
		Metadata:     map[string]any{"author": "sam", "chunk_index": float64(0)},
		PageNumbers:  []int{1},
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStore_StoreRetrieve_RoundTrip(t *testing.T) {
	// Given: a store and a record with an unnormalized embedding
	s := openTestStore(t, testOptions(t.TempDir()))
	ctx := context.Background()
	in := newRecord("hello world", 3, 4, 0, 0)

	// When: storing and retrieving it
	id, err := s.Store(ctx, in)
	require.NoError(t, err)
	got, ok, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	// Then: fields match and the embedding is unit length
	assert.NotEmpty(t, id)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, in.SourceFile, got.SourceFile)
	assert.Equal(t, in.DocumentType, got.DocumentType)
	assert.Equal(t, in.Tags, got.Tags)
	assert.Equal(t, in.Metadata, got.Metadata)
	assert.Equal(t, in.PageNumbers, got.PageNumbers)
	assert.True(t, fixedNow.Equal(got.Timestamp))
	assert.InDelta(t, 1.0, norm(got.Embedding), 1e-5)
	assert.InDelta(t, 0.6, float64(got.Embedding[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(got.Embedding[1]), 1e-6)

	// And: the caller's record is untouched
	assert.Empty(t, in.ID)
	assert.Equal(t, float32(3), in.Embedding[0])
}

func TestStore_Store_AssignsFreshIDs(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()

	a, err := s.Store(ctx, newRecord("same", 1, 0, 0, 0))
	require.NoError(t, err)
	b, err := s.Store(ctx, newRecord("same", 1, 0, 0, 0))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_Store_RejectsBadEmbedding(t *testing.T) {
	s := openTestStore(t, testOptions(""))

	tests := []struct {
		name string
		vec  []float32
		code string
	}{
		{"missing", nil, docerrors.ErrCodeDimensionMismatch},
		{"too short", []float32{1, 0}, docerrors.ErrCodeDimensionMismatch},
		{"too long", []float32{1, 0, 0, 0, 0}, docerrors.ErrCodeDimensionMismatch},
		{"zero", []float32{0, 0, 0, 0}, docerrors.ErrCodeInvalidInput},
		{"nan", []float32{float32(math.NaN()), 0, 0, 0}, docerrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Store(context.Background(), newRecord("x", tt.vec...))
			require.Error(t, err)
			assert.Equal(t, tt.code, docerrors.GetCode(err))
		})
	}

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing persisted")
}

func TestStore_Retrieve_UnknownID(t *testing.T) {
	s := openTestStore(t, testOptions(""))

	rec, ok, err := s.Retrieve(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestStore_Retrieve_ReturnsCopies(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("x", 1, 0, 0, 0))
	require.NoError(t, err)

	first, _, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	first.Tags[0] = "mutated"
	first.Embedding[0] = 0

	second, _, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "one", second.Tags[0])
	assert.Equal(t, float32(1), second.Embedding[0])
}

func TestStore_Retrieve_CachedMatchesDurable(t *testing.T) {
	tests := []struct {
		name      string
		cacheSize int
	}{
		{"cached", 16},
		{"uncached", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a record whose Go values differ from their decoded form
			dir := t.TempDir()
			ctx := context.Background()
			opts := testOptions(dir)
			opts.CacheSize = tt.cacheSize
			s, err := OpenWithClock(ctx, opts, func() time.Time { return fixedNow })
			require.NoError(t, err)
			rec := newRecord("shape", 1, 0, 0, 0)
			rec.Tags = nil
			rec.PageNumbers = nil
			rec.Metadata = map[string]any{"count": 3, "pages": []int{1, 2}}
			id, err := s.Store(ctx, rec)
			require.NoError(t, err)

			// When: retrieving twice, then updating and retrieving again
			first, ok, err := s.Retrieve(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			second, _, err := s.Retrieve(ctx, id)
			require.NoError(t, err)
			_, err = s.Update(ctx, id, Update{Metadata: map[string]any{"count": 4}})
			require.NoError(t, err)
			updated, _, err := s.Retrieve(ctx, id)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			// Then: every read has the shape a reopened store returns
			s = openTestStore(t, testOptions(dir))
			durable, _, err := s.Retrieve(ctx, id)
			require.NoError(t, err)

			assert.Equal(t, float64(3), first.Metadata["count"])
			assert.Equal(t, []any{float64(1), float64(2)}, first.Metadata["pages"])
			assert.NotNil(t, first.Tags)
			assert.NotNil(t, first.PageNumbers)
			assert.Equal(t, first, second)
			assert.Equal(t, float64(4), updated.Metadata["count"])
			assert.Equal(t, updated, durable)
		})
	}
}

func TestStore_Update_TagsOnly(t *testing.T) {
	// Given: a stored record
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("keep me", 1, 2, 3, 4))
	require.NoError(t, err)
	before, _, err := s.Retrieve(ctx, id)
	require.NoError(t, err)

	// When: updating only tags
	ok, err := s.Update(ctx, id, Update{Tags: []string{"new"}})
	require.NoError(t, err)
	require.True(t, ok)

	// Then: content and embedding are unchanged
	after, _, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, after.Tags)
	assert.Equal(t, before.Content, after.Content)
	assert.Equal(t, before.Embedding, after.Embedding)
	assert.Zero(t, s.index.Tombstones())
}

func TestStore_Update_EmbeddingOnly(t *testing.T) {
	// Given: a stored record pointing along x
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("keep me", 1, 0, 0, 0))
	require.NoError(t, err)

	// When: moving its embedding to y
	ok, err := s.Update(ctx, id, Update{Embedding: []float32{0, 5, 0, 0}})
	require.NoError(t, err)
	require.True(t, ok)

	// Then: content and tags are unchanged and the embedding is normalized
	after, _, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "keep me", after.Content)
	assert.Equal(t, []string{"one", "two"}, after.Tags)
	assert.InDelta(t, 1.0, norm(after.Embedding), 1e-5)

	// And: the old slot is tombstoned and the new one is searchable
	assert.Equal(t, 1, s.IndexSize())
	assert.Equal(t, 1, s.index.Tombstones())
	hits, err := s.SearchVector([]float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestStore_Update_RejectsWrongDimension(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("x", 1, 0, 0, 0))
	require.NoError(t, err)

	_, err = s.Update(ctx, id, Update{Embedding: []float32{1, 0}})

	assert.ErrorIs(t, err, docerrors.ErrDimensionMismatch)
}

func TestStore_Update_UnknownID(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	content := "x"

	ok, err := s.Update(context.Background(), "missing", Update{Content: &content})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Delete_Visibility(t *testing.T) {
	// Given: two records close to the same query
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	gone, err := s.Store(ctx, newRecord("gone", 1, 0, 0, 0))
	require.NoError(t, err)
	kept, err := s.Store(ctx, newRecord("kept", 0.9, 0.1, 0, 0))
	require.NoError(t, err)

	// When: deleting the closer one
	removed, err := s.Delete(ctx, gone)
	require.NoError(t, err)
	require.True(t, removed)

	// Then: retrieve reports absence
	_, ok, err := s.Retrieve(ctx, gone)
	require.NoError(t, err)
	assert.False(t, ok)

	// And: the tombstone closes the gap, search cannot surface the id
	hits, err := s.SearchVector([]float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept, hits[0].ID)

	// And: a second delete is a no-op
	removed, err = s.Delete(ctx, gone)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_AutoCompact(t *testing.T) {
	// Given: a low compaction floor
	opts := testOptions("")
	opts.CompactMinTombstones = 2
	opts.CompactThreshold = 0.25
	s := openTestStore(t, opts)
	ctx := context.Background()

	var ids []string
	for i := range 4 {
		v := []float32{0, 0, 0, 0}
		v[i] = 1
		id, err := s.Store(ctx, newRecord("r", v...))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// When: deleting half the records
	_, err := s.Delete(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, s.index.Tombstones(), "one tombstone is below the floor")
	_, err = s.Delete(ctx, ids[1])
	require.NoError(t, err)

	// Then: the index was rebuilt without tombstones
	assert.Zero(t, s.index.Tombstones())
	assert.Equal(t, 2, s.index.Slots())

	hits, err := s.SearchVector([]float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ids[2], hits[0].ID)
}

func TestStore_AutoCompact_KeepsTieOrderAndSlotNumbers(t *testing.T) {
	// Given: identical vectors stored in a known order
	opts := testOptions("")
	opts.CompactMinTombstones = 2
	opts.CompactThreshold = 0.25
	s := openTestStore(t, opts)
	ctx := context.Background()

	var ids []string
	highest := -1
	for range 5 {
		id, err := s.Store(ctx, newRecord("same", 1, 1, 0, 0))
		require.NoError(t, err)
		ids = append(ids, id)
		highest = max(highest, s.idToSlot[id])
	}

	// When: deleting enough to trigger compaction
	for _, id := range ids[:2] {
		_, err := s.Delete(ctx, id)
		require.NoError(t, err)
	}
	require.Zero(t, s.index.Tombstones(), "compaction ran")

	// Then: ties still resolve in insertion order
	hits, err := s.SearchVector([]float32{1, 1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, ids[2:], []string{hits[0].ID, hits[1].ID, hits[2].ID})

	// And: surviving and new slots are above every slot assigned before
	for _, id := range ids[2:] {
		assert.Greater(t, s.idToSlot[id], highest)
	}
	fresh, err := s.Store(ctx, newRecord("later", 1, 1, 0, 0))
	require.NoError(t, err)
	for _, id := range ids[2:] {
		assert.Greater(t, s.idToSlot[fresh], s.idToSlot[id])
	}

	hits, err = s.SearchVector([]float32{1, 1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, fresh, hits[3].ID)
}

func TestStore_Reopen_KeepsInsertionTieOrder(t *testing.T) {
	// Given: identical vectors persisted in a known order
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(ctx, testOptions(dir))
	require.NoError(t, err)
	var ids []string
	for range 4 {
		id, err := s.Store(ctx, newRecord("same", 0, 1, 0, 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.Close())

	// When: reopening and searching
	s = openTestStore(t, testOptions(dir))
	hits, err := s.SearchVector([]float32{0, 1, 0, 0}, 4)
	require.NoError(t, err)

	// Then: ties resolve in the order records were stored
	require.Len(t, hits, 4)
	got := make([]string, 0, len(hits))
	for _, h := range hits {
		got = append(got, h.ID)
	}
	assert.Equal(t, ids, got)
}

func TestStore_Compact(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("r", 1, 0, 0, 0))
	require.NoError(t, err)
	_, err = s.Update(ctx, id, Update{Embedding: []float32{0, 1, 0, 0}})
	require.NoError(t, err)

	res, err := s.Compact(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SlotsBefore)
	assert.Equal(t, 1, res.SlotsAfter)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, s.IndexSize())
}

func TestStore_ListAndGetAll(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	for range 3 {
		_, err := s.Store(ctx, newRecord("r", 1, 1, 0, 0))
		require.NoError(t, err)
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[2].ID)

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)
}

func TestStore_Reopen_RebuildsIndex(t *testing.T) {
	// Given: records persisted then closed
	dir := t.TempDir()
	s, err := Open(context.Background(), testOptions(dir))
	require.NoError(t, err)
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("persist", 0, 0, 2, 0))
	require.NoError(t, err)
	_, err = s.Store(ctx, newRecord("other", 1, 0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s = openTestStore(t, testOptions(dir))

	// Then: vectors are searchable and state was recorded
	hits, err := s.SearchVector([]float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, 2, s.IndexSize())

	st := s.State()
	require.NotNil(t, st)
	assert.Equal(t, 2, st.DocumentCount)
	assert.True(t, st.LastStart.Equal(fixedNow))
}

func TestStore_Open_WrongDimension(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), testOptions(dir))
	require.NoError(t, err)
	_, err = s.Store(context.Background(), newRecord("x", 1, 0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	opts := testOptions(dir)
	opts.Dimensions = 8
	_, err = Open(context.Background(), opts)

	assert.ErrorIs(t, err, docerrors.ErrDimensionMismatch)
}

func TestStore_Open_LockedDirectory(t *testing.T) {
	// Given: an open store
	dir := t.TempDir()
	first := openTestStore(t, testOptions(dir))

	// When: opening the same directory again
	_, err := Open(context.Background(), testOptions(dir))

	// Then: the second open fails until the first closes
	require.Error(t, err)
	assert.ErrorIs(t, err, docerrors.ErrStoreLocked)

	require.NoError(t, first.Close())
	second, err := Open(context.Background(), testOptions(dir))
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestStore_Open_StateFileKeepsInitialized(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := OpenWithClock(context.Background(), testOptions(dir), func() time.Time { return first })
	require.NoError(t, err)
	require.NoError(t, s.Close())

	openTestStore(t, testOptions(dir))

	st, err := ReadState(dir)
	require.NoError(t, err)
	assert.True(t, st.Initialized.Equal(first))
	assert.True(t, st.LastStart.Equal(fixedNow))
	assert.NotEmpty(t, st.SystemVersion)
	assert.FileExists(t, filepath.Join(dir, StateFileName))
}

func TestStore_CheckAndRepair_FullText(t *testing.T) {
	// Given: a store whose full-text index lost an entry
	dir := t.TempDir()
	s := openTestStore(t, testOptions(dir))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("zebra crossing", 1, 0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.fulltext.Delete(ctx, []string{id}))

	// When: checking
	res, err := s.Check(ctx)
	require.NoError(t, err)

	// Then: the missing entry is reported and repair restores it
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueMissingFullText, res.Issues[0].Type)
	assert.Equal(t, "missing_fulltext", res.Issues[0].Type.String())

	_, err = s.Repair(ctx)
	require.NoError(t, err)

	res, err = s.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.Healthy())

	hits, err := s.FullText(ctx, "zebra", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].DocID)
}

func TestStore_CheckAndRepair_Vectors(t *testing.T) {
	s := openTestStore(t, testOptions(""))
	ctx := context.Background()
	id, err := s.Store(ctx, newRecord("x", 1, 0, 0, 0))
	require.NoError(t, err)

	// Simulate drift: drop the slot mapping and add an orphan slot
	slot := s.idToSlot[id]
	s.index.Remove(slot)
	delete(s.idToSlot, id)
	delete(s.slotToID, slot)
	orphan, err := s.index.Add([]float32{0, 1, 0, 0})
	require.NoError(t, err)
	s.slotToID[orphan] = "ghost"
	s.idToSlot["ghost"] = orphan

	res, err := s.Check(ctx)
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, IssueMissingVector, res.Issues[0].Type)
	assert.Equal(t, IssueOrphanVector, res.Issues[1].Type)

	_, err = s.Repair(ctx)
	require.NoError(t, err)

	res, err = s.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.Healthy())
	hits, err := s.SearchVector([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
}

func TestStore_Open_SyncsFullTextAfterBackendSwitch(t *testing.T) {
	// Given: records written with the full-text index disabled
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.FullText = "none"
	s, err := Open(context.Background(), opts)
	require.NoError(t, err)
	_, err = s.Store(context.Background(), newRecord("quasar pulsar", 1, 0, 0, 0))
	require.NoError(t, err)
	_, err = s.FullText(context.Background(), "quasar", 5)
	assert.Error(t, err, "disabled index")
	require.NoError(t, s.Close())

	// When: reopening with bleve
	opts.FullText = "bleve"
	s = openTestStore(t, opts)

	// Then: the index was back-filled
	hits, err := s.FullText(context.Background(), "quasar", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	_, statErr := os.Stat(store.FullTextBasePath(dir) + ".bleve")
	assert.NoError(t, statErr)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	s := openTestStore(t, testOptions(t.TempDir()))
	ctx := context.Background()
	seed, err := s.Store(ctx, newRecord("seed", 1, 0, 0, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 10 {
				v := []float32{0, 0, 0, 0}
				v[w%testDims] = 1
				_, err := s.Store(ctx, newRecord("w", v...))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range 10 {
				rec, ok, err := s.Retrieve(ctx, seed)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "seed", rec.Content)
				_, err = s.SearchVector([]float32{1, 0, 0, 0}, 3)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 41, n)
	assert.Equal(t, 41, s.IndexSize())
}

func TestStore_ClosedStore(t *testing.T) {
	s, err := Open(context.Background(), testOptions(""))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Store(context.Background(), newRecord("x", 1, 0, 0, 0))
	assert.Error(t, err)
	_, err = s.SearchVector([]float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	out, ok := Normalize([]float32{3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0.6, float64(out[0]), 1e-7)
	assert.InDelta(t, 0.8, float64(out[1]), 1e-7)

	_, ok = Normalize([]float32{0, 0})
	assert.False(t, ok)
	_, ok = Normalize([]float32{float32(math.Inf(1)), 0})
	assert.False(t, ok)
}
