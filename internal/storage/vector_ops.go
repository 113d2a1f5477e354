package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptVector is returned when a stored vector does not match its
// snapshot's dimension.
var ErrCorruptVector = errors.New("stored vector does not match snapshot dimension")

// encodeVector packs vec as little-endian float32s, the layout of
// snapshot_embeddings.vector.
func encodeVector(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// decodeVector unpacks a stored vector that must hold exactly dim floats.
func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("%w: %d bytes for dimension %d", ErrCorruptVector, len(blob), dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
