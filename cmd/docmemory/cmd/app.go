package cmd

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/docmemory/internal/chunk"
	"github.com/Aman-CERP/docmemory/internal/config"
	"github.com/Aman-CERP/docmemory/internal/embed"
	"github.com/Aman-CERP/docmemory/internal/memory"
	"github.com/Aman-CERP/docmemory/internal/search"
	"github.com/Aman-CERP/docmemory/internal/telemetry"
)

// app is the set of components one command works with.
type app struct {
	cfg      *config.Config
	memory   *memory.Store
	embedder embed.Embedder
	metrics  *telemetry.QueryMetrics
	engine   *search.Engine
}

// openOptions choose which optional components a command needs.
type openOptions struct {
	embedder bool
	metrics  bool
}

// openApp opens the memory store in the configured storage directory and
// the components requested by o.
func openApp(ctx context.Context, g *globalOptions, o openOptions) (*app, error) {
	cfg := g.cfg
	if cfg == nil {
		cfg = config.NewConfig()
	}

	mem, err := memory.Open(ctx, memory.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, memory: mem}

	if o.embedder {
		a.embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	if o.metrics && cfg.Storage.Path != "" {
		st, err := telemetry.OpenSQLiteMetricsStore(filepath.Join(cfg.Storage.Path, telemetry.MetricsFileName))
		if err != nil {
			// Query metrics never block a search.
			slog.Warn("metrics_store_unavailable", slog.String("error", err.Error()))
		} else {
			a.metrics = telemetry.NewQueryMetrics(st, telemetry.DefaultConfig())
		}
	}

	opts := []search.EngineOption{search.WithConfig(search.ConfigFromSettings(cfg.Search))}
	if a.metrics != nil {
		opts = append(opts, search.WithMetrics(a.metrics))
	}
	a.engine, err = search.NewEngine(mem, a.embedder, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// chunker builds the configured chunker.
func (a *app) chunker() *chunk.Chunker {
	return chunk.New(
		chunk.WithMaxSize(a.cfg.Chunking.MaxSize),
		chunk.WithOverlap(a.cfg.Chunking.Overlap),
		chunk.WithMinChunkSize(a.cfg.Chunking.MinSize),
	)
}

// Close flushes metrics and releases every component.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.metrics.Close(ctx))
		cancel()
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.memory != nil {
		errs = append(errs, a.memory.Close())
	}
	return errors.Join(errs...)
}
