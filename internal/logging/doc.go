// Package logging configures structured JSON logging for docmemory.
// Logs go to a size-rotated file under ~/.docmemory/logs/ and, with --debug,
// are mirrored to stderr.
package logging
