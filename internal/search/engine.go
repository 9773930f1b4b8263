package search

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docmemory/internal/embed"
	"github.com/Aman-CERP/docmemory/internal/telemetry"
)

// Engine runs retrieval over a memory store.
type Engine struct {
	memory   Memory
	embedder embed.Embedder // optional; nil limits Search to lexical modes
	config   EngineConfig
	metrics  *telemetry.QueryMetrics
	now      func() time.Time
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithConfig replaces the default engine configuration.
func WithConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithClock sets the clock recency is measured against.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics sets an optional query metrics collector.
// When set, every dispatched search is recorded.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a search engine over mem. The embedder may be nil, in
// which case semantic and hybrid requests through Search run as keyword.
func NewEngine(mem Memory, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if mem == nil {
		return nil, ErrNilDependency
	}

	e := &Engine{
		memory:   mem,
		embedder: embedder,
		config:   DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.config.DefaultLimit <= 0 {
		e.config.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if e.config.MaxLimit <= 0 {
		e.config.MaxLimit = DefaultConfig().MaxLimit
	}
	if e.config.Rerank.HalfLifeDays <= 0 {
		e.config.Rerank.HalfLifeDays = DefaultRerankWeights().HalfLifeDays
	}

	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// normalizeLimit applies the default and the cap.
func (e *Engine) normalizeLimit(limit int) int {
	if limit <= 0 {
		return e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return limit
}

func (e *Engine) recordMetrics(query string, t telemetry.SearchType, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Type:        t,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   e.now(),
	})
	slog.Debug("search_recorded",
		slog.String("type", string(t)),
		slog.Int("results", resultCount),
		slog.Duration("latency", latency))
}
