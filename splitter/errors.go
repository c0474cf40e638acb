package splitter

import "errors"

var (
	// ErrInvalidChunkSize is returned when ChunkSize is not positive.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrInvalidOverlap is returned when ChunkOverlap is negative or not smaller than ChunkSize.
	ErrInvalidOverlap = errors.New("chunk overlap must be in [0, chunk size)")

	// ErrOverlapTooLarge is returned by the recursive strategy when the
	// overlap prefix could push a chunk past its size slack.
	ErrOverlapTooLarge = errors.New("chunk overlap must not exceed a fifth of chunk size")

	// ErrUnknownStrategy is returned by New for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown split strategy")
)
