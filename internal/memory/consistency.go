package memory

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// IssueType categorizes a detected inconsistency.
type IssueType int

const (
	// IssueMissingVector is a record with an embedding but no live slot.
	IssueMissingVector IssueType = iota
	// IssueOrphanVector is a live slot whose record no longer exists.
	IssueOrphanVector
	// IssueMissingFullText is a record absent from the full-text index.
	IssueMissingFullText
	// IssueOrphanFullText is a full-text entry without a record.
	IssueOrphanFullText
)

// String returns a human-readable description of the issue type.
func (t IssueType) String() string {
	switch t {
	case IssueMissingVector:
		return "missing_vector"
	case IssueOrphanVector:
		return "orphan_vector"
	case IssueMissingFullText:
		return "missing_fulltext"
	case IssueOrphanFullText:
		return "orphan_fulltext"
	default:
		return "unknown"
	}
}

// Issue is one cross-index inconsistency.
type Issue struct {
	Type    IssueType
	ID      string
	Slot    int // set for orphan vectors
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of records verified.
	Checked int
	// Issues lists every inconsistency, ordered by type then id.
	Issues []Issue
	// Duration is how long the check took.
	Duration time.Duration
}

// Healthy reports whether the check found nothing.
func (r *CheckResult) Healthy() bool {
	return len(r.Issues) == 0
}

// CompactResult reports what a compaction removed.
type CompactResult struct {
	SlotsBefore int
	SlotsAfter  int
	Removed     int
	Duration    time.Duration
}

// Check compares the record store against the vector and full-text indexes.
func (s *Store) Check(ctx context.Context) (*CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	return s.checkLocked(ctx)
}

// Repair fixes everything Check reports and returns what it found.
// Orphans are dropped; missing entries are rebuilt from the record store.
func (s *Store) Repair(ctx context.Context) (*CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}

	result, err := s.checkLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.repairLocked(ctx, result.Issues); err != nil {
		return nil, err
	}
	return result, nil
}

// Compact rebuilds the vector index from its live slots in slot order,
// dropping every tombstone. The rebuilt index numbers its slots after the
// highest slot previously assigned, so relative order is kept and no slot
// number is reused.
func (s *Store) Compact(ctx context.Context) (*CompactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}
	return s.compactLocked(ctx)
}

func (s *Store) checkLocked(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	ids, err := s.records.IDs(ctx)
	if err != nil {
		return nil, err
	}
	recordIDs := make(map[string]bool, len(ids))
	for _, id := range ids {
		recordIDs[id] = true
	}

	withEmbedding := make(map[string]bool, len(ids))
	err = s.records.Embeddings(ctx, func(id string, _ []float32) error {
		withEmbedding[id] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	var issues []Issue

	for _, id := range ids {
		if !withEmbedding[id] {
			continue
		}
		if _, ok := s.idToSlot[id]; !ok {
			issues = append(issues, Issue{
				Type:    IssueMissingVector,
				ID:      id,
				Details: "record has an embedding but no live slot",
			})
		}
	}

	for slot, id := range s.slotToID {
		if !recordIDs[id] {
			issues = append(issues, Issue{
				Type:    IssueOrphanVector,
				ID:      id,
				Slot:    slot,
				Details: "live slot without a record",
			})
		}
	}

	if s.fulltext != nil {
		ftIDs, err := s.fulltext.AllIDs(ctx)
		if err != nil {
			slog.Warn("fulltext_ids_failed", slog.String("error", err.Error()))
		} else {
			ftSet := make(map[string]bool, len(ftIDs))
			for _, id := range ftIDs {
				ftSet[id] = true
				if !recordIDs[id] {
					issues = append(issues, Issue{
						Type:    IssueOrphanFullText,
						ID:      id,
						Details: "full-text entry without a record",
					})
				}
			}
			for _, id := range ids {
				if !ftSet[id] {
					issues = append(issues, Issue{
						Type:    IssueMissingFullText,
						ID:      id,
						Details: "record missing from the full-text index",
					})
				}
			}
		}
	}

	slices.SortFunc(issues, func(a, b Issue) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return a.Slot - b.Slot
	})

	return &CheckResult{
		Checked:  len(ids),
		Issues:   issues,
		Duration: time.Since(start),
	}, nil
}

func (s *Store) repairLocked(ctx context.Context, issues []Issue) error {
	var orphanFullText []string
	var missingFullText []*store.Document
	fixed := 0

	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphanVector:
			s.index.Remove(issue.Slot)
			delete(s.slotToID, issue.Slot)
			if s.idToSlot[issue.ID] == issue.Slot {
				delete(s.idToSlot, issue.ID)
			}
			fixed++

		case IssueMissingVector:
			rec, err := s.records.Get(ctx, issue.ID)
			if err != nil {
				return err
			}
			if rec == nil || rec.Embedding == nil {
				continue
			}
			if len(rec.Embedding) != s.opts.Dimensions {
				return docerrors.DimensionError(s.opts.Dimensions, len(rec.Embedding)).WithDetail("id", issue.ID)
			}
			unit, ok := Normalize(rec.Embedding)
			if !ok {
				continue
			}
			slot, err := s.index.Add(unit)
			if err != nil {
				return docerrors.Wrap(docerrors.ErrCodeIndexFailed, err)
			}
			s.idToSlot[issue.ID] = slot
			s.slotToID[slot] = issue.ID
			fixed++

		case IssueOrphanFullText:
			orphanFullText = append(orphanFullText, issue.ID)

		case IssueMissingFullText:
			rec, err := s.records.Get(ctx, issue.ID)
			if err != nil {
				return err
			}
			if rec != nil {
				missingFullText = append(missingFullText, &store.Document{ID: rec.ID, Title: rec.Title, Content: rec.Content})
			}
		}
	}

	if len(orphanFullText) > 0 {
		if err := s.fulltext.Delete(ctx, orphanFullText); err != nil {
			return docerrors.Wrap(docerrors.ErrCodeIndexFailed, err)
		}
		fixed += len(orphanFullText)
	}
	if len(missingFullText) > 0 {
		if err := s.fulltext.Index(ctx, missingFullText); err != nil {
			return docerrors.Wrap(docerrors.ErrCodeIndexFailed, err)
		}
		fixed += len(missingFullText)
	}

	if fixed > 0 {
		slog.Info("consistency_repaired", slog.Int("fixed", fixed), slog.Int("issues", len(issues)))
	}
	return nil
}

func (s *Store) compactLocked(ctx context.Context) (*CompactResult, error) {
	start := time.Now()
	before := s.index.Slots()

	index, err := store.NewVectorIndexAt(s.opts.Backend, s.opts.Dimensions, s.opts.HNSW, s.index.NextSlot())
	if err != nil {
		return nil, docerrors.ConfigError("invalid vector index settings", err)
	}

	slots := slices.Sorted(maps.Keys(s.slotToID))
	idToSlot := make(map[string]int, len(slots))
	slotToID := make(map[int]string, len(slots))
	for _, old := range slots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := s.index.Vector(old)
		if vec == nil {
			continue
		}
		slot, err := index.Add(vec)
		if err != nil {
			return nil, err
		}
		id := s.slotToID[old]
		idToSlot[id] = slot
		slotToID[slot] = id
	}
	s.index, s.idToSlot, s.slotToID = index, idToSlot, slotToID

	result := &CompactResult{
		SlotsBefore: before,
		SlotsAfter:  index.Slots(),
		Removed:     before - index.Slots(),
		Duration:    time.Since(start),
	}
	slog.Info("index_compacted",
		slog.Int("slots_before", result.SlotsBefore),
		slog.Int("slots_after", result.SlotsAfter),
		slog.Duration("duration", result.Duration))
	return result, nil
}
