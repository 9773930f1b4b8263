// Package embed turns text into dense vectors for similarity search.
package embed

import (
	"context"
	"math"
	"time"
)

// Embedding defaults.
const (
	// DefaultDimensions is the vector width used when nothing is configured.
	DefaultDimensions = 384

	// DefaultBatchSize is the number of texts sent per batch request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length in place. Zero vectors are left as is.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	mag := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}
