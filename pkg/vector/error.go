package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConnection is returned when the vector store backend fails.
	ErrConnection = errors.New("vector store connection failed")
)
