package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		minLen int
		want   []string
	}{
		{"lowercases", "Hello World", 2, []string{"hello", "world"}},
		{"splits punctuation", "state-of-the-art, v2.0!", 2, []string{"state", "of", "the", "art", "v2"}},
		{"drops short", "a bc d ef", 2, []string{"bc", "ef"}},
		{"unicode letters", "Größe café", 2, []string{"größe", "café"}},
		{"empty", "", 2, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input, tt.minLen))
		})
	}
}

func TestTokenizeSpans_ByteOffsets(t *testing.T) {
	text := "café au lait"
	spans := TokenizeSpans(text, 1)

	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, s.Term, text[s.Start:s.End])
	}
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 5, spans[0].End, "é is two bytes")
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"The", "of"})

	got := FilterStopWords([]string{"the", "state", "OF", "art"}, stop)

	assert.Equal(t, []string{"state", "art"}, got)
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{0, -0, 1, -1, math.Pi, float32(math.Inf(1)), math.SmallestNonzeroFloat32}

	blob := EncodeVector(v)
	require.Len(t, blob, 4*len(v))

	got, err := DecodeVector(blob)
	require.NoError(t, err)
	for i := range v {
		assert.Equal(t, math.Float32bits(v[i]), math.Float32bits(got[i]))
	}

	assert.Nil(t, EncodeVector(nil))
	decoded, err := DecodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
