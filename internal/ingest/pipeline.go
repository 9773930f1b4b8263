// Package ingest turns document files into stored memory records.
//
// A file is extracted to text, split into chunks, embedded in batches and
// stored one record per chunk. Every record carries the chunk metadata
// (source_file, document_type, chunk_index, chunk_count, total_size, title)
// merged under any caller metadata.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docmemory/internal/chunk"
	"github.com/Aman-CERP/docmemory/internal/embed"
	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/extract"
	"github.com/Aman-CERP/docmemory/internal/store"
	"github.com/Aman-CERP/docmemory/internal/ui"
)

// Memory is the subset of the memory store the pipeline writes to.
type Memory interface {
	Store(ctx context.Context, rec *store.Record) (string, error)
	Delete(ctx context.Context, id string) (bool, error)
	FindBySource(ctx context.Context, source string) ([]*store.Record, error)
}

// Options apply to every record produced from one file.
type Options struct {
	// Title overrides the extracted or file-name title.
	Title string
	Tags  []string
	// Metadata is merged over the chunk metadata.
	Metadata map[string]any
}

// Result is the outcome for one file of a batch.
type Result struct {
	IDs []string
	Err error
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	// Memory receives the records (required).
	Memory Memory

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Extractor defaults to extract.New().
	Extractor *extract.Extractor

	// Chunker defaults to chunk.New().
	Chunker *chunk.Chunker

	// Renderer receives progress events for batches (optional).
	Renderer ui.Renderer
}

// Config tunes the pipeline.
type Config struct {
	// Workers bounds concurrent files in ProcessBatch. Defaults to NumCPU.
	Workers int
	// BatchSize is the number of chunks embedded per request.
	BatchSize int
	// EmbedderBackend names the provider in completion summaries.
	EmbedderBackend string
}

// Pipeline ingests files into a memory store.
type Pipeline struct {
	memory    Memory
	embedder  embed.Embedder
	extractor *extract.Extractor
	chunker   *chunk.Chunker
	renderer  ui.Renderer
	workers   int
	batchSize int
	backend   string
}

// New creates a Pipeline.
func New(deps Dependencies, cfg Config) (*Pipeline, error) {
	if deps.Memory == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	p := &Pipeline{
		memory:    deps.Memory,
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		renderer:  deps.Renderer,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		backend:   cfg.EmbedderBackend,
	}
	if p.extractor == nil {
		p.extractor = extract.New()
	}
	if p.chunker == nil {
		p.chunker = chunk.New()
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	if p.batchSize <= 0 {
		p.batchSize = embed.DefaultBatchSize
	}
	return p, nil
}

// Supports reports whether the pipeline can extract path.
func (p *Pipeline) Supports(path string) bool {
	return p.extractor.Supports(path)
}

// ProcessFile ingests one file and returns the new record ids in chunk
// order. A file with no text stores nothing and returns an empty slice.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts Options) ([]string, error) {
	return p.processFile(ctx, path, opts, nil)
}

// stageFunc reports the stage a file has reached.
type stageFunc func(ui.Stage)

func (p *Pipeline) processFile(ctx context.Context, path string, opts Options, stage stageFunc) ([]string, error) {
	if stage == nil {
		stage = func(ui.Stage) {}
	}

	recs, err := p.prepare(ctx, path, opts, stage)
	if err != nil {
		return nil, err
	}

	stage(ui.StageStoring)
	ids, err := p.storeAll(ctx, path, recs)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		slog.Info("ingest_file_stored",
			slog.String("path", path),
			slog.Int("records", len(ids)),
			slog.String("document_type", recs[0].DocumentType))
	}
	return ids, nil
}

// prepare extracts, chunks and embeds path without touching the store.
func (p *Pipeline) prepare(ctx context.Context, path string, opts Options, stage stageFunc) ([]*store.Record, error) {
	stage(ui.StageExtracting)
	doc, err := p.extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	stage(ui.StageChunking)
	chunks := p.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		slog.Debug("ingest_empty_document", slog.String("path", path))
		return []*store.Record{}, nil
	}

	title := documentTitle(path, doc, opts.Title)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	stage(ui.StageEmbedding)
	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	recs := make([]*store.Record, len(chunks))
	for i, c := range chunks {
		recs[i] = &store.Record{
			Title:        title,
			Content:      c.Content,
			SourceFile:   path,
			DocumentType: doc.Format,
			Embedding:    vectors[i],
			Tags:         append([]string(nil), opts.Tags...),
			Metadata:     chunkMetadata(path, doc, title, c.Index, len(chunks), opts.Metadata),
			Summary:      "",
			PageNumbers:  []int{1},
		}
	}
	return recs, nil
}

// storeAll stores recs in order. If any store fails, the records already
// stored are deleted again and no ids are returned.
func (p *Pipeline) storeAll(ctx context.Context, path string, recs []*store.Record) ([]string, error) {
	ids := make([]string, 0, len(recs))
	for i, rec := range recs {
		id, err := p.memory.Store(ctx, rec)
		if err != nil {
			p.rollback(ctx, path, ids)
			return nil, fmt.Errorf("store chunk %d of %s: %w", i, path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Pipeline) rollback(ctx context.Context, path string, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if _, err := p.memory.Delete(ctx, id); err != nil {
			slog.Error("ingest_rollback_failed",
				slog.String("path", path),
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch, err := p.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingFailed, "embed chunks", err)
		}
		if len(batch) != end-start {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(batch), end-start), nil)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func documentTitle(path string, doc *extract.Document, override string) string {
	if t := strings.TrimSpace(override); t != "" {
		return t
	}
	if doc.Title != "" {
		return doc.Title
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func chunkMetadata(path string, doc *extract.Document, title string, index, count int, custom map[string]any) map[string]any {
	md := map[string]any{
		"source_file":   path,
		"document_type": doc.Format,
		"chunk_index":   index,
		"chunk_count":   count,
		"total_size":    len([]rune(doc.Text)),
		"title":         title,
	}
	maps.Copy(md, custom)
	return md
}

// ProcessBatch ingests paths with a bounded worker pool. A failing file
// records its error without stopping the others. The returned error is
// non-nil only when ctx is cancelled.
func (p *Pipeline) ProcessBatch(ctx context.Context, paths []string, opts Options) (map[string]Result, error) {
	start := time.Now()
	results := make(map[string]Result, len(paths))
	var mu sync.Mutex
	var done, stored, failed atomic.Int64

	renderer := p.renderer
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			report := func(s ui.Stage) {
				if renderer != nil {
					renderer.UpdateProgress(ui.ProgressEvent{
						Stage:       s,
						Current:     int(done.Load()),
						Total:       len(paths),
						CurrentFile: path,
					})
				}
			}

			ids, err := p.processFile(gctx, path, opts, report)
			if ids == nil {
				ids = []string{}
			}
			done.Add(1)
			stored.Add(int64(len(ids)))

			if err != nil {
				failed.Add(1)
				slog.Warn("ingest_file_failed", slog.String("path", path), slog.String("error", err.Error()))
				if renderer != nil {
					renderer.AddError(ui.ErrorEvent{File: path, Err: err})
				}
			}
			report(ui.StageStoring)

			mu.Lock()
			results[path] = Result{IDs: ids, Err: err}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	if renderer != nil {
		info := ui.EmbedderInfo{Backend: p.backend, Model: p.embedder.ModelName(), Dimensions: p.embedder.Dimensions()}
		renderer.Complete(ui.CompletionStats{
			Files:    int(done.Load()),
			Records:  int(stored.Load()),
			Duration: time.Since(start),
			Errors:   int(failed.Load()),
			Embedder: info,
		})
	}

	return results, err
}

// UpdateDocument replaces every record that came from path with a fresh
// ingestion of the file. The new records are stored before the old ones
// are removed, so a failure at any earlier step leaves the previous
// records intact.
func (p *Pipeline) UpdateDocument(ctx context.Context, path string, opts Options) ([]string, error) {
	recs, err := p.prepare(ctx, path, opts, func(ui.Stage) {})
	if err != nil {
		return nil, err
	}

	previous, err := p.memory.FindBySource(ctx, path)
	if err != nil {
		return nil, err
	}

	ids, err := p.storeAll(ctx, path, recs)
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, rec := range previous {
		ok, err := p.memory.Delete(ctx, rec.ID)
		if err != nil {
			return ids, fmt.Errorf("remove previous record %s of %s: %w", rec.ID, path, err)
		}
		if ok {
			removed++
		}
	}

	slog.Info("ingest_document_updated",
		slog.String("path", path),
		slog.Int("removed", removed),
		slog.Int("stored", len(ids)))
	return ids, nil
}

// RemoveDocument deletes every record whose source file is path and
// returns how many were removed.
func (p *Pipeline) RemoveDocument(ctx context.Context, path string) (int, error) {
	recs, err := p.memory.FindBySource(ctx, path)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range recs {
		ok, err := p.memory.Delete(ctx, rec.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		slog.Info("ingest_document_removed", slog.String("path", path), slog.Int("records", removed))
	}
	return removed, nil
}
