// Package watcher watches an inbox directory and reports debounced
// document changes.
//
// fsnotify is the primary mechanism, with polling as the fallback where
// fsnotify cannot be created. Events for one path are coalesced within
// the debounce window:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing
//   - anything + DELETE = DELETE
//   - DELETE + CREATE = MODIFY
//
// Batches are delivered in path order. A Dispatcher feeds them to the
// ingestion pipeline:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{Filter: pipeline.Supports})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, inbox) }()
//
//	d := watcher.NewDispatcher(pipeline, ingest.Options{})
//	for batch := range w.Events() {
//	    d.Handle(ctx, batch)
//	}
package watcher
