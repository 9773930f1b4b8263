package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{99 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	// Given: a buffer of capacity 3
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	// When: five items are added
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	// Then: the newest three remain, oldest first
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestCircularBuffer_PartialFill(t *testing.T) {
	b := NewCircularBuffer[string](0)
	b.Add("a")
	b.Add("b")
	assert.Equal(t, []string{"a", "b"}, b.Items())
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "", nil},
		{"short and stop words only", "a to of the", nil},
		{"lowercased", "Quarterly REVENUE", []string{"quarterly", "revenue"}},
		{"punctuation splits", "tax-report, 2024", []string{"tax", "report", "2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: a memory-only collector
	m := NewQueryMetrics(nil, DefaultConfig())

	// When: three queries are recorded, one with no results
	m.Record(QueryEvent{Query: "budget forecast", Type: SearchTypeHybrid, ResultCount: 4, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "budget", Type: SearchTypeKeyword, ResultCount: 2, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "zebra migration", Type: SearchTypeHybrid, ResultCount: 0, Latency: 700 * time.Millisecond})

	// Then: the snapshot reflects all of them
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.TypeCounts[SearchTypeHybrid])
	assert.Equal(t, int64(1), snap.TypeCounts[SearchTypeKeyword])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"zebra migration"}, snap.ZeroResultQueries)
	assert.InDelta(t, 33.33, snap.ZeroResultPercentage(), 0.01)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP1000])

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "budget", Count: 2}, snap.TopTerms[0])
}

func TestQueryMetrics_FlushWithoutStore(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	m.Record(QueryEvent{Query: "anything", Type: SearchTypeSemantic, ResultCount: 1})
	assert.NoError(t, m.Flush(context.Background()))
	assert.NoError(t, m.Close(context.Background()))
}

func TestQueryMetrics_FlushWritesDeltasOnce(t *testing.T) {
	ctx := context.Background()

	// Given: a collector backed by an in-memory metrics store
	st, err := OpenSQLiteMetricsStore("")
	require.NoError(t, err)
	m := NewQueryMetrics(st, DefaultConfig())
	t.Cleanup(func() { _ = m.Close(ctx) })

	m.Record(QueryEvent{Query: "solar panels", Type: SearchTypeHybrid, ResultCount: 3})

	// When: flushing twice with no new records in between
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Flush(ctx))

	// Then: the persisted totals count the query once
	summary, err := st.Summary(ctx, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalQueries)
	assert.Equal(t, int64(1), summary.TypeCounts[SearchTypeHybrid])

	// When: another query arrives and is flushed
	m.Record(QueryEvent{Query: "solar", Type: SearchTypeKeyword, ResultCount: 0})
	require.NoError(t, m.Flush(ctx))

	// Then: the totals accumulate
	summary, err = st.Summary(ctx, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalQueries)
	assert.Equal(t, int64(1), summary.ZeroResultCount)
	assert.Equal(t, []string{"solar"}, summary.ZeroResultQueries)
	require.NotEmpty(t, summary.TopTerms)
	assert.Equal(t, TermCount{Term: "solar", Count: 2}, summary.TopTerms[0])
}

type failingStore struct {
	fail  bool
	types map[SearchType]int64
}

func (f *failingStore) AddTypeCounts(_ context.Context, _ string, counts map[SearchType]int64) error {
	if f.fail {
		return errors.New("disk full")
	}
	for k, v := range counts {
		f.types[k] += v
	}
	return nil
}
func (f *failingStore) UpsertTermCounts(context.Context, map[string]int64) error { return nil }
func (f *failingStore) AddZeroResultQueries(context.Context, []ZeroResultQuery) error {
	return nil
}
func (f *failingStore) AddLatencyCounts(context.Context, string, map[LatencyBucket]int64) error {
	return nil
}
func (f *failingStore) Close() error { return nil }

func TestQueryMetrics_FailedFlushRetainsDeltas(t *testing.T) {
	ctx := context.Background()

	// Given: a store that fails the first write
	st := &failingStore{fail: true, types: map[SearchType]int64{}}
	m := NewQueryMetrics(st, DefaultConfig())
	m.Record(QueryEvent{Query: "retry me", Type: SearchTypeTags, ResultCount: 1})

	// When: the first flush fails and a second succeeds
	require.Error(t, m.Flush(ctx))
	st.fail = false
	m.Record(QueryEvent{Query: "again", Type: SearchTypeTags, ResultCount: 1})
	require.NoError(t, m.Flush(ctx))

	// Then: nothing was lost
	assert.Equal(t, int64(2), st.types[SearchTypeTags])
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))

	m.Record(QueryEvent{Query: "late", Type: SearchTypeHybrid})
	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}
