// Package ui provides terminal progress and status display for ingestion.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of the ingestion pipeline.
type Stage int

const (
	// StageExtracting reads text out of source files.
	StageExtracting Stage = iota
	// StageChunking splits text into records.
	StageChunking
	// StageEmbedding generates chunk embeddings.
	StageEmbedding
	// StageStoring writes records to the memory store.
	StageStoring
	// StageComplete indicates ingestion is complete.
	StageComplete
)

var stageLabels = [...]struct{ name, tag string }{
	StageExtracting: {"Extracting", "READ"},
	StageChunking:   {"Chunking", "CHUNK"},
	StageEmbedding:  {"Embedding", "EMBED"},
	StageStoring:    {"Storing", "STORE"},
	StageComplete:   {"Complete", "DONE"},
}

func (s Stage) valid() bool { return s >= 0 && int(s) < len(stageLabels) }

// String returns the human-readable stage name.
func (s Stage) String() string {
	if !s.valid() {
		return "Unknown"
	}
	return stageLabels[s].name
}

// Tag returns the short upper-case label used by plain output.
func (s Stage) Tag() string {
	if !s.valid() {
		return "???"
	}
	return stageLabels[s].tag
}

// ProgressEvent represents a progress update. Current and Total count files.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents a file that failed or warned.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo describes the embedding backend.
type EmbedderInfo struct {
	Backend    string // "static" or "ollama"
	Model      string
	Dimensions int
}

// CompletionStats summarizes an ingestion run.
type CompletionStats struct {
	Files    int
	Records  int
	Duration time.Duration
	Errors   int
	Warnings int
	Embedder EmbedderInfo
}

// Renderer defines the interface for progress display.
// Implementations are safe for concurrent use by ingest workers.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// StorageDir is shown in the TUI header.
	StorageDir string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithStorageDir sets the storage directory shown in the header.
func WithStorageDir(dir string) ConfigOption {
	return func(c *Config) {
		c.StorageDir = dir
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
