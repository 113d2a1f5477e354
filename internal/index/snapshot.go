package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/faqgate/pkg/types"
)

// Common errors
var (
	ErrSizeMismatch      = fmt.Errorf("%w: chunk and vector counts differ", types.ErrValidation)
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", types.ErrValidation)
)

// Snapshot is an immutable, internally consistent pair of dense and
// keyword indices built from the same chunk set.
type Snapshot struct {
	Generation string
	SourceHash string
	BuiltAt    time.Time

	Dense   *DenseIndex
	Keyword *KeywordIndex

	chunks  []types.Chunk
	vectors [][]float32
	byID    map[string]int
}

// NewSnapshot builds both indices. A failure leaves nothing half-built.
func NewSnapshot(chunks []types.Chunk, vectors [][]float32, sourceHash string) (*Snapshot, error) {
	dense := NewDenseIndex()
	if err := dense.Build(chunks, vectors); err != nil {
		return nil, fmt.Errorf("build dense index: %w", err)
	}
	keyword := NewKeywordIndex()
	if err := keyword.Build(chunks); err != nil {
		return nil, fmt.Errorf("build keyword index: %w", err)
	}

	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}

	return &Snapshot{
		Generation: uuid.NewString(),
		SourceHash: sourceHash,
		BuiltAt:    time.Now().UTC(),
		Dense:      dense,
		Keyword:    keyword,
		chunks:     append([]types.Chunk(nil), chunks...),
		vectors:    vectors,
		byID:       byID,
	}, nil
}

// RestoreSnapshot rebuilds a previously published snapshot, keeping its
// generation and build time.
func RestoreSnapshot(generation, sourceHash string, builtAt time.Time, chunks []types.Chunk, vectors [][]float32) (*Snapshot, error) {
	snap, err := NewSnapshot(chunks, vectors, sourceHash)
	if err != nil {
		return nil, err
	}
	if generation != "" {
		snap.Generation = generation
	}
	if !builtAt.IsZero() {
		snap.BuiltAt = builtAt.UTC()
	}
	return snap, nil
}

// EmptySnapshot returns a snapshot with no chunks.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Generation: "empty",
		Dense:      NewDenseIndex(),
		Keyword:    NewKeywordIndex(),
		byID:       map[string]int{},
	}
}

// ChunkByID looks up a chunk by id.
func (s *Snapshot) ChunkByID(id string) (types.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return types.Chunk{}, false
	}
	return s.chunks[i], true
}

// Chunks returns a copy of the indexed chunks in insertion order.
func (s *Snapshot) Chunks() []types.Chunk {
	return append([]types.Chunk(nil), s.chunks...)
}

// Vectors returns the vectors the dense index was built from. Callers must
// not modify them.
func (s *Snapshot) Vectors() [][]float32 {
	return s.vectors
}

// Size returns the number of chunks in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.chunks)
}

// Store publishes snapshots. Readers grab the current snapshot once per
// query and keep using it even if a newer one is published meanwhile.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(EmptySnapshot())
	return s
}

// Publish makes snap the current snapshot and returns the one it replaced.
func (s *Store) Publish(snap *Snapshot) *Snapshot {
	if snap == nil {
		snap = EmptySnapshot()
	}
	return s.current.Swap(snap)
}

// Current returns the current snapshot. It is never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
