package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statusNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStatusRenderer(buf *bytes.Buffer) *StatusRenderer {
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return statusNow }
	return r
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a populated status
	buf := &bytes.Buffer{}
	r := newTestStatusRenderer(buf)
	info := StatusInfo{
		StorageDir:      "/data/memory",
		Version:         "1.2.0",
		Documents:       12,
		IndexSize:       12,
		Slots:           15,
		Tombstones:      3,
		FullTextDocs:    12,
		Dimensions:      256,
		VectorBackend:   "hnsw",
		FullTextBackend: "sqlite",
		DiskSize:        3 * 1024 * 1024,
		Initialized:     statusNow.Add(-48 * time.Hour),
		LastStart:       statusNow.Add(-5 * time.Minute),
		EmbedderType:    "static",
		EmbedderStatus:  "ready",
		Health:          "degraded",
		Issues:          2,
		TotalQueries:    40,
		ZeroResultRate:  12.5,
		TopQueryTerms:   []string{"alpha", "beta"},
	}

	// When: rendering
	require.NoError(t, r.Render(info))

	// Then: every section is present
	out := buf.String()
	assert.Contains(t, out, "Memory Status: /data/memory")
	assert.Contains(t, out, "Documents:    12")
	assert.Contains(t, out, "Tombstones:   3 of 15 slots")
	assert.Contains(t, out, "Initialized:  2 days ago")
	assert.Contains(t, out, "Last start:   5 minutes ago")
	assert.Contains(t, out, "Vector:     hnsw (256 dims)")
	assert.Contains(t, out, "Full-text:  sqlite (12 docs)")
	assert.Contains(t, out, "Disk:       3.0 MB")
	assert.Contains(t, out, "Health: degraded (2 issues)")
	assert.Contains(t, out, "Zero results: 12.5%")
	assert.Contains(t, out, "[alpha beta]")
}

func TestStatusRenderer_Render_Minimal(t *testing.T) {
	// Given: a fresh store with no telemetry and full-text disabled
	buf := &bytes.Buffer{}
	r := newTestStatusRenderer(buf)

	// When: rendering
	require.NoError(t, r.Render(StatusInfo{StorageDir: "mem", VectorBackend: "flat", EmbedderType: "none", EmbedderStatus: "offline"}))

	// Then: optional sections are omitted
	out := buf.String()
	assert.Contains(t, out, "Full-text:  disabled")
	assert.NotContains(t, out, "Tombstones")
	assert.NotContains(t, out, "Queries:")
	assert.NotContains(t, out, "Health:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status without timestamps
	buf := &bytes.Buffer{}
	r := newTestStatusRenderer(buf)

	// When: rendering JSON
	require.NoError(t, r.RenderJSON(StatusInfo{StorageDir: "d", Documents: 3, VectorBackend: "flat"}))

	// Then: the output decodes and zero times are omitted
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "d", decoded["storage_dir"])
	assert.InDelta(t, 3, decoded["documents"], 0)
	assert.NotContains(t, decoded, "initialized")
	assert.NotContains(t, decoded, "last_start")
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{30 * time.Minute, "30 minutes ago"},
		{time.Hour, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{10 * 24 * time.Hour, "2026-04-21 12:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTime(statusNow.Add(-tt.ago), statusNow))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.in))
		})
	}
}
