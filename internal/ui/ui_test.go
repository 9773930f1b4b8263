package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Names(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		tag   string
	}{
		{StageExtracting, "Extracting", "READ"},
		{StageChunking, "Chunking", "CHUNK"},
		{StageEmbedding, "Embedding", "EMBED"},
		{StageStoring, "Storing", "STORE"},
		{StageComplete, "Complete", "DONE"},
		{Stage(42), "Unknown", "???"},
		{Stage(-1), "Unknown", "???"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.tag, tt.stage.Tag())
		})
	}
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewConfig_Options(t *testing.T) {
	// Given: options
	buf := &bytes.Buffer{}

	// When: building a config
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithStorageDir("/data"))

	// Then: every option is applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/data", cfg.StorageDir)
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: output to a buffer
	cfg := NewConfig(&bytes.Buffer{})

	// When: choosing a renderer
	r := NewRenderer(cfg)

	// Then: plain text is used
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(true)

	assert.Equal(t, "x", plain.Header.Render("x"))
	assert.Equal(t, "x", plain.Error.Render("x"))
}
