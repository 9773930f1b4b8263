package store

import (
	"math"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the approximate index.
type HNSWConfig struct {
	// M is max connections per layer (default: 16)
	M int

	// EfSearch is query-time search width (default: 64)
	EfSearch int
}

// HNSWIndex implements VectorIndex on coder/hnsw.
// Removal is lazy: the node stays in the graph and is filtered at query
// time, which avoids a coder/hnsw bug when deleting the last node.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int]
	dims       int
	base       int
	vectors    [][]float32 // exact copies for re-scoring, vectors[i] is slot base+i; nil = tombstone
	tombstones int
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index of width dims.
func NewHNSWIndex(dims int, cfg HNSWConfig) *HNSWIndex {
	return NewHNSWIndexAt(dims, cfg, 0)
}

// NewHNSWIndexAt creates an empty HNSW index whose first slot is base.
func NewHNSWIndexAt(dims int, cfg HNSWConfig, base int) *HNSWIndex {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 1 / math.Log(float64(cfg.M))

	return &HNSWIndex{graph: graph, dims: dims, base: max(base, 0)}
}

// Add appends vec to the graph and returns its slot.
func (h *HNSWIndex) Add(vec []float32) (int, error) {
	if len(vec) != h.dims {
		return 0, dimensionError(h.dims, len(vec))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	slot := h.base + len(h.vectors)
	stored := slices.Clone(vec)
	h.vectors = append(h.vectors, stored)
	h.graph.Add(hnsw.MakeNode(slot, slices.Clone(vec)))
	return slot, nil
}

// Remove tombstones slot without touching the graph.
func (h *HNSWIndex) Remove(slot int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := slot - h.base
	if i < 0 || i >= len(h.vectors) || h.vectors[i] == nil {
		return false
	}
	h.vectors[i] = nil
	h.tombstones++
	return true
}

// Search over-fetches by the tombstone count so k live hits survive
// filtering, then re-scores exactly and applies the flat ordering.
// When the score at rank k is shared by the weakest fetched candidate,
// the tie group may extend past the fetch window; the group is then
// completed by an exact scan so ties still break by lower slot.
func (h *HNSWIndex) Search(query []float32, k int) ([]SlotScore, error) {
	if len(query) != h.dims {
		return nil, dimensionError(h.dims, len(query))
	}
	if k <= 0 {
		return []SlotScore{}, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.vectors) == h.tombstones {
		return []SlotScore{}, nil
	}

	fetch := min(k+h.tombstones, h.graph.Len())
	nodes := h.graph.Search(query, fetch)

	hits := make([]SlotScore, 0, len(nodes))
	for _, node := range nodes {
		vec := h.vectors[node.Key-h.base]
		if vec == nil {
			continue
		}
		hits = append(hits, SlotScore{Slot: node.Key, Score: dot(query, vec)})
	}

	sortHits(hits)
	if len(hits) >= k && len(nodes) < h.graph.Len() && hits[len(hits)-1].Score >= hits[k-1].Score {
		hits = h.scanAtLeast(query, hits[k-1].Score)
		sortHits(hits)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// scanAtLeast returns every live slot scoring at least floor.
// Caller holds h.mu.
func (h *HNSWIndex) scanAtLeast(query []float32, floor float64) []SlotScore {
	var hits []SlotScore
	for i, vec := range h.vectors {
		if vec == nil {
			continue
		}
		if score := dot(query, vec); score >= floor {
			hits = append(hits, SlotScore{Slot: h.base + i, Score: score})
		}
	}
	return hits
}

// Vector returns a copy of the vector at slot, or nil if it is not live.
func (h *HNSWIndex) Vector(slot int) []float32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i := slot - h.base
	if i < 0 || i >= len(h.vectors) {
		return nil
	}
	return slices.Clone(h.vectors[i])
}

// Len returns the number of live slots.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors) - h.tombstones
}

// Slots returns the number of slots held, live or removed.
func (h *HNSWIndex) Slots() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

// NextSlot returns the slot the next Add will assign.
func (h *HNSWIndex) NextSlot() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.base + len(h.vectors)
}

// Tombstones returns the number of lazily deleted nodes.
func (h *HNSWIndex) Tombstones() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tombstones
}

// Dimensions returns the vector width.
func (h *HNSWIndex) Dimensions() int {
	return h.dims
}
