package types

import "errors"

// Error taxonomy shared by every component. Package-level errors wrap one of
// these so callers can classify failures with errors.Is.
var (
	// ErrValidation marks malformed input: mismatched build sizes, duplicate
	// chunk ids, empty questions, out-of-range configuration.
	ErrValidation = errors.New("validation error")

	// ErrProviderFailure marks a failing embedding or scoring backend.
	ErrProviderFailure = errors.New("provider failure")

	// ErrGenerationFailure marks a failing answer generator. The pipeline
	// reports it as an outcome rather than returning it.
	ErrGenerationFailure = errors.New("generation failure")
)

// Chunk validation errors
var (
	ErrEmptyChunkID      = errors.New("chunk id cannot be empty")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrDuplicateChunkID  = errors.New("duplicate chunk id")
	ErrInvalidScoreRange = errors.New("score must be finite")
)
