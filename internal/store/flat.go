package store

import (
	"cmp"
	"slices"
	"sync"
)

// FlatIndex is an exact brute-force VectorIndex. It is the reference
// implementation every other backend must agree with.
type FlatIndex struct {
	mu         sync.RWMutex
	dims       int
	base       int
	vectors    [][]float32 // vectors[i] holds slot base+i; nil entries are tombstones
	tombstones int
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index of width dims.
func NewFlatIndex(dims int) *FlatIndex {
	return NewFlatIndexAt(dims, 0)
}

// NewFlatIndexAt creates an empty flat index whose first slot is base.
func NewFlatIndexAt(dims, base int) *FlatIndex {
	return &FlatIndex{dims: dims, base: max(base, 0)}
}

// Add appends vec (which must already be unit length) and returns its slot.
func (f *FlatIndex) Add(vec []float32) (int, error) {
	if len(vec) != f.dims {
		return 0, dimensionError(f.dims, len(vec))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = append(f.vectors, slices.Clone(vec))
	return f.base + len(f.vectors) - 1, nil
}

// Remove tombstones slot.
func (f *FlatIndex) Remove(slot int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slot - f.base
	if i < 0 || i >= len(f.vectors) || f.vectors[i] == nil {
		return false
	}
	f.vectors[i] = nil
	f.tombstones++
	return true
}

// Search scores every live slot and returns the best k.
func (f *FlatIndex) Search(query []float32, k int) ([]SlotScore, error) {
	if len(query) != f.dims {
		return nil, dimensionError(f.dims, len(query))
	}
	if k <= 0 {
		return []SlotScore{}, nil
	}

	f.mu.RLock()
	hits := make([]SlotScore, 0, len(f.vectors)-f.tombstones)
	for i, vec := range f.vectors {
		if vec == nil {
			continue
		}
		hits = append(hits, SlotScore{Slot: f.base + i, Score: dot(query, vec)})
	}
	f.mu.RUnlock()

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Vector returns a copy of the vector at slot, or nil if it is not live.
func (f *FlatIndex) Vector(slot int) []float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := slot - f.base
	if i < 0 || i >= len(f.vectors) {
		return nil
	}
	return slices.Clone(f.vectors[i])
}

// Len returns the number of live slots.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors) - f.tombstones
}

// Slots returns the number of slots held, live or removed.
func (f *FlatIndex) Slots() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// NextSlot returns the slot the next Add will assign.
func (f *FlatIndex) NextSlot() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.base + len(f.vectors)
}

// Tombstones returns the number of removed slots.
func (f *FlatIndex) Tombstones() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tombstones
}

// Dimensions returns the vector width.
func (f *FlatIndex) Dimensions() int {
	return f.dims
}

// dot is the inner product, accumulated in float64.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// sortHits orders by score descending, then slot ascending.
func sortHits(hits []SlotScore) {
	slices.SortFunc(hits, func(a, b SlotScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
}
