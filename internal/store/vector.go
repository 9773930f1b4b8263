package store

import "fmt"

// VectorBackend names a VectorIndex implementation.
type VectorBackend string

const (
	// VectorBackendFlat is exact brute-force search (default).
	VectorBackendFlat VectorBackend = "flat"

	// VectorBackendHNSW is approximate search on coder/hnsw.
	VectorBackendHNSW VectorBackend = "hnsw"
)

// NewVectorIndex creates an empty index for backend.
func NewVectorIndex(backend string, dims int, cfg HNSWConfig) (VectorIndex, error) {
	return NewVectorIndexAt(backend, dims, cfg, 0)
}

// NewVectorIndexAt creates an empty index for backend whose first slot is base.
func NewVectorIndexAt(backend string, dims int, cfg HNSWConfig, base int) (VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dims)
	}
	switch VectorBackend(backend) {
	case VectorBackendFlat, "":
		return NewFlatIndexAt(dims, base), nil
	case VectorBackendHNSW:
		return NewHNSWIndexAt(dims, cfg, base), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: flat, hnsw)", backend)
	}
}
