package chunk

import "strings"

// Chunker splits text into ordered chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	maxSize int
	overlap int
	minSize int
}

// New creates a Chunker with defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxSize: DefaultMaxSize,
		overlap: DefaultOverlap,
		minSize: DefaultMinChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minSize > c.maxSize {
		c.minSize = c.maxSize
	}
	return c
}

// MaxSize returns the configured window size.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the configured lookback size.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text with the chunker's settings.
func (c *Chunker) Chunk(text string) []Chunk {
	return split([]rune(text), c.maxSize, c.overlap, c.minSize)
}

// Chunk splits text into windows of maxSize runes, preferring to cut just
// after sentence punctuation found within the last overlap runes of each
// window. It uses the default minimum chunk size.
func Chunk(text string, maxSize, overlap int) []Chunk {
	return New(WithMaxSize(maxSize), WithOverlap(overlap)).Chunk(text)
}

func split(text []rune, maxSize, overlap, minSize int) []Chunk {
	var chunks []Chunk
	n := len(text)

	for start := 0; start < n; {
		end := start + maxSize
		cut := n
		if end < n {
			cut = findCut(text, start, end, overlap, minSize)
		}

		content := strings.TrimSpace(string(text[start:cut]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Content: content,
				Start:   start,
				End:     cut,
			})
		}
		start = cut
	}

	return chunks
}

// findCut returns the cut position for the window [start, end), end < len(text).
// The result is always in (start, end].
func findCut(text []rune, start, end, overlap, minSize int) int {
	searchStart := end - overlap
	lower := max(searchStart, start)

	// Nearest boundary first; searchStart itself is excluded.
	for i := end - 1; i > lower; i-- {
		if isTerminator(text[i]) && i+1 < len(text) && isBreakSpace(text[i+1]) {
			return i + 1
		}
	}

	return min(max(searchStart, start+minSize), end)
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	}
	return false
}

func isBreakSpace(r rune) bool {
	switch r {
	case ' ', '\n', '\t', '\r':
		return true
	}
	return false
}
