package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeVector(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, float32(math.Pi)}
	blob := encodeVector(vec)
	assert.Len(t, blob, len(vec)*4)

	got, err := decodeVector(blob, len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	got, err = decodeVector(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeVectorDimensionMismatch(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3, 4, 5}, 1)
	assert.ErrorIs(t, err, ErrCorruptVector)

	_, err = decodeVector(encodeVector([]float32{1, 2}), 3)
	assert.ErrorIs(t, err, ErrCorruptVector)
}

func TestEncodeVectorProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		vec := rapid.SliceOf(rapid.Float32Range(-10, 10)).Draw(rt, "vec")
		got, err := decodeVector(encodeVector(vec), len(vec))
		if err != nil {
			rt.Fatal(err)
		}
		if len(got) != len(vec) {
			rt.Fatalf("length %d != %d", len(got), len(vec))
		}
		for i := range vec {
			if got[i] != vec[i] {
				rt.Fatalf("index %d: %v != %v", i, got[i], vec[i])
			}
		}
	})
}
