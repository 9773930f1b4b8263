// Package chunk splits extracted document text into bounded, sentence-aware
// chunks that become individual memory records.
package chunk

// Chunk size defaults, in runes.
const (
	DefaultMaxSize      = 1000
	DefaultOverlap      = 100
	DefaultMinChunkSize = 50
)

// Chunk is one bounded slice of a document's text.
type Chunk struct {
	Index   int    // Sequential over kept chunks, starting at 0
	Content string // Trimmed text
	Start   int    // Rune offset of the untrimmed window start
	End     int    // Rune offset one past the untrimmed window end
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxSize sets the window size in runes.
func WithMaxSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithOverlap sets the lookback window used to find a sentence boundary.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithMinChunkSize sets the minimum distance a fallback cut advances past
// the window start.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.minSize = n
		}
	}
}
