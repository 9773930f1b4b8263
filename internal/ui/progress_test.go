package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Apply(t *testing.T) {
	// Given: a new tracker
	p := NewProgressTracker()

	// When: applying events
	p.Apply(ProgressEvent{Stage: StageChunking, Current: 2, Total: 4, CurrentFile: "a.md"})
	stats := p.Stats()

	// Then: the snapshot reflects the event
	assert.Equal(t, StageChunking, stats.Stage)
	assert.Equal(t, 2, stats.Current)
	assert.Equal(t, 4, stats.Total)
	assert.InDelta(t, 0.5, stats.Progress, 1e-9)
	assert.Equal(t, "a.md", stats.CurrentFile)
}

func TestProgressTracker_CurrentIsMonotonic(t *testing.T) {
	// Given: a tracker at 3 of 5
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageStoring, Current: 3, Total: 5})

	// When: a late worker reports an older count
	p.Apply(ProgressEvent{Stage: StageStoring, Current: 1})

	// Then: current and total keep their values
	stats := p.Stats()
	assert.Equal(t, 3, stats.Current)
	assert.Equal(t, 5, stats.Total)
}

func TestProgressTracker_ProgressBounds(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		want    float64
	}{
		{"no total", 3, 0, 0},
		{"half", 1, 2, 0.5},
		{"overshoot clamps", 9, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressTracker()
			p.Apply(ProgressEvent{Stage: StageEmbedding, Current: tt.current, Total: tt.total})

			stats := p.Stats()

			assert.InDelta(t, tt.want, stats.Progress, 1e-9)
		})
	}
}

func TestProgressTracker_ETAZeroWhenDone(t *testing.T) {
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageComplete, Current: 4, Total: 4})

	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_ErrorsAndWarnings(t *testing.T) {
	// Given: a tracker
	p := NewProgressTracker()

	// When: adding one error and two warnings
	p.AddError(ErrorEvent{File: "a", Err: errors.New("bad")})
	p.AddError(ErrorEvent{File: "b", Err: errors.New("meh"), IsWarn: true})
	p.AddError(ErrorEvent{File: "c", Err: errors.New("meh"), IsWarn: true})

	// Then: they are counted separately
	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
	assert.Len(t, p.Errors(), 1)
	assert.Len(t, p.Warnings(), 2)
	assert.Equal(t, "a", p.Errors()[0].File)
}

func TestProgressTracker_ErrorsReturnsCopy(t *testing.T) {
	p := NewProgressTracker()
	p.AddError(ErrorEvent{File: "a", Err: errors.New("bad")})

	errs := p.Errors()
	errs[0].File = "changed"

	assert.Equal(t, "a", p.Errors()[0].File)
}
