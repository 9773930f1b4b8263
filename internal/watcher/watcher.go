package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the batch channel buffer.
	// Default: 100
	EventBufferSize int

	// Filter reports whether a file path should be watched. Nil accepts
	// every file.
	Filter func(path string) bool

	// IgnoreDirs are absolute directories skipped entirely, such as a
	// storage directory inside the inbox.
	IgnoreDirs []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// pathFilter decides which paths reach the debouncer.
type pathFilter struct {
	accept     func(string) bool
	ignoreDirs []string
}

func newPathFilter(opts Options) pathFilter {
	dirs := make([]string, 0, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		if abs, err := filepath.Abs(d); err == nil {
			dirs = append(dirs, abs)
		}
	}
	return pathFilter{accept: opts.Filter, ignoreDirs: dirs}
}

// skipDir reports whether a directory is never watched. Hidden
// directories are skipped unless they are the root itself.
func (f pathFilter) skipDir(root, path string) bool {
	if path == root {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	return f.underIgnored(path)
}

func (f pathFilter) underIgnored(path string) bool {
	for _, d := range f.ignoreDirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// keepFile reports whether a file event for path is forwarded.
func (f pathFilter) keepFile(root, path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") || f.underIgnored(path) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if part != "." && strings.HasPrefix(part, ".") {
			return false
		}
	}
	return f.accept == nil || f.accept(path)
}
