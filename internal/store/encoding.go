package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// EncodeVector packs a vector as little-endian float32 values.
// The encoding is bit-exact: DecodeVector(EncodeVector(v)) == v.
func EncodeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	buf := make([]byte, 4*len(vector))
	for i, val := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if data == nil {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: %d bytes is not a multiple of 4", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// encodeJSON marshals v, storing nil maps and slices as empty JSON values.
func encodeJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// decodeJSON unmarshals a column into dst. Empty columns leave dst untouched.
func decodeJSON(col string, dst any) error {
	if col == "" || col == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col), dst)
}
