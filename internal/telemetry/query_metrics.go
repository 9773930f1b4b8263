// Package telemetry records local search telemetry: query mix, frequent
// terms, zero-result queries and latency. Nothing leaves the machine.
package telemetry

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/docmemory/internal/store"
)

// SearchType is the retrieval mode a query ran through.
type SearchType string

const (
	SearchTypeSemantic SearchType = "semantic"
	SearchTypeKeyword  SearchType = "keyword"
	SearchTypeHybrid   SearchType = "hybrid"
	SearchTypeFullText SearchType = "fulltext"
	SearchTypeTags     SearchType = "tags"
	SearchTypeRelated  SearchType = "related"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one search for telemetry recording.
type QueryEvent struct {
	Query       string
	Type        SearchType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity items (default 100).
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
		return result
	}
	n := copy(result, b.items[b.head:])
	copy(result[n:], b.items[:b.head])
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

var termStopWords = store.BuildStopWordMap(store.DefaultStopWords)

// ExtractTerms returns the lowercased query terms of at least three runes,
// stop words removed. It tokenizes the same way the full-text index does.
func ExtractTerms(query string) []string {
	terms := store.FilterStopWords(store.Tokenize(query, 3), termStopWords)
	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TypeCounts          map[SearchType]int64    `json:"type_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Store persists metric deltas.
type Store interface {
	AddTypeCounts(ctx context.Context, date string, counts map[SearchType]int64) error
	UpsertTermCounts(ctx context.Context, terms map[string]int64) error
	AddZeroResultQueries(ctx context.Context, queries []ZeroResultQuery) error
	AddLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error
	Close() error
}

// ZeroResultQuery is a query that found nothing.
type ZeroResultQuery struct {
	Query     string
	Timestamp time.Time
}

// Config configures the collector.
type Config struct {
	TopTermsCapacity    int // default 100
	ZeroResultsCapacity int // default 100
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{TopTermsCapacity: 100, ZeroResultsCapacity: 100}
}

// pending holds what has been recorded since the last flush.
type pending struct {
	types     map[SearchType]int64
	terms     map[string]int64
	zero      []ZeroResultQuery
	latencies map[LatencyBucket]int64
}

func newPending() pending {
	return pending{
		types:     make(map[SearchType]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (p pending) empty() bool {
	return len(p.types) == 0 && len(p.terms) == 0 && len(p.zero) == 0 && len(p.latencies) == 0
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	types           map[SearchType]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	unflushed pending
	store     Store
	closed    bool
}

// NewQueryMetrics creates a collector. A nil store keeps metrics in memory only.
func NewQueryMetrics(st Store, cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &QueryMetrics{
		types:       make(map[SearchType]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
		unflushed:   newPending(),
		store:       st,
	}
}

// Record captures one query.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.totalQueries++
	m.types[event.Type]++
	m.unflushed.types[event.Type]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.unflushed.terms[term]++
	}

	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
		m.unflushed.zero = append(m.unflushed.zero, ZeroResultQuery{Query: event.Query, Timestamp: event.Timestamp})
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.unflushed.latencies[bucket]++
}

// Snapshot returns the metrics collected by this process.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sortTermCounts(topTerms)

	types := make(map[SearchType]int64, len(m.types))
	for k, v := range m.types {
		types[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		TypeCounts:          types,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
	}
}

// sortTermCounts orders by count descending, then term.
func sortTermCounts(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})
}

// Flush writes everything recorded since the previous flush. Without a
// store it is a no-op. On failure the deltas are kept for the next flush.
func (m *QueryMetrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}

	if err := m.write(ctx, batch); err != nil {
		m.mu.Lock()
		m.unflushed = mergePending(batch, m.unflushed)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *QueryMetrics) write(ctx context.Context, batch pending) error {
	today := time.Now().UTC().Format("2006-01-02")

	if err := m.store.AddTypeCounts(ctx, today, batch.types); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(ctx, batch.terms); err != nil {
		return err
	}
	if err := m.store.AddZeroResultQueries(ctx, batch.zero); err != nil {
		return err
	}
	return m.store.AddLatencyCounts(ctx, today, batch.latencies)
}

func mergePending(a, b pending) pending {
	out := newPending()
	for _, p := range []pending{a, b} {
		for k, v := range p.types {
			out.types[k] += v
		}
		for k, v := range p.terms {
			out.terms[k] += v
		}
		for k, v := range p.latencies {
			out.latencies[k] += v
		}
		out.zero = append(out.zero, p.zero...)
	}
	return out
}

// Close flushes and closes the store. Further Records are ignored.
func (m *QueryMetrics) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Flush(ctx)
	if m.store != nil {
		if cerr := m.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
