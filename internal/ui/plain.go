package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer writes one line per event. It is used for CI, pipes and
// --plain.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

var _ Renderer = (*PlainRenderer)(nil)

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// line writes a complete line under the lock so concurrent workers never
// interleave.
func (r *PlainRenderer) line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

func (r *PlainRenderer) Stop() error { return nil }

// UpdateProgress prints "[TAG] current/total - file" or "[TAG] message".
// Events with neither a message nor a file are dropped.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	subject := event.Message
	if subject == "" {
		subject = event.CurrentFile
	}

	switch {
	case event.Message == "" && event.Total > 0:
		r.line("[%s] %d/%d - %s", event.Stage.Tag(), event.Current, event.Total, subject)
	case subject != "":
		r.line("[%s] %s", event.Stage.Tag(), subject)
	}
}

func (r *PlainRenderer) AddError(event ErrorEvent) {
	level := "ERROR"
	if event.IsWarn {
		level = "WARN"
	}
	if event.File == "" {
		r.line("%s: %v", level, event.Err)
		return
	}
	r.line("%s: %s: %v", level, event.File, event.Err)
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	var b strings.Builder
	fmt.Fprintf(&b, "Complete: %d files, %d records stored in %s",
		stats.Files, stats.Records, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors+stats.Warnings > 0 {
		fmt.Fprintf(&b, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	if e := stats.Embedder; e.Backend != "" {
		fmt.Fprintf(&b, "\nEmbedder: %s (%s, %d dims)", e.Backend, e.Model, e.Dimensions)
	}
	r.line("%s", b.String())
}
