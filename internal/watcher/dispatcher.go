package watcher

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/docmemory/internal/ingest"
)

// Ingester applies file changes to the memory store.
type Ingester interface {
	UpdateDocument(ctx context.Context, path string, opts ingest.Options) ([]string, error)
	RemoveDocument(ctx context.Context, path string) (int, error)
}

// BatchResult counts what one batch did.
type BatchResult struct {
	Updated int
	Removed int
	Failed  int
}

// Dispatcher routes debounced batches to an Ingester.
type Dispatcher struct {
	ingester Ingester
	opts     ingest.Options
}

// NewDispatcher creates a dispatcher whose updates use opts.
func NewDispatcher(ing Ingester, opts ingest.Options) *Dispatcher {
	return &Dispatcher{ingester: ing, opts: opts}
}

// Handle applies a batch in order. A failed file is logged and the rest
// of the batch continues.
func (d *Dispatcher) Handle(ctx context.Context, events []FileEvent) BatchResult {
	var res BatchResult
	for _, event := range events {
		if ctx.Err() != nil {
			return res
		}

		var err error
		switch event.Operation {
		case OpCreate, OpModify:
			_, err = d.ingester.UpdateDocument(ctx, event.Path, d.opts)
			if err == nil {
				res.Updated++
			}
		case OpDelete:
			_, err = d.ingester.RemoveDocument(ctx, event.Path)
			if err == nil {
				res.Removed++
			}
		default:
			continue
		}

		if err != nil {
			res.Failed++
			slog.Warn("watch_event_failed",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
		}
	}

	slog.Debug("watch_batch_applied",
		slog.Int("updated", res.Updated),
		slog.Int("removed", res.Removed),
		slog.Int("failed", res.Failed))
	return res
}
