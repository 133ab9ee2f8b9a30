// Package embeddings provides text embedding capabilities for the memory
// layer, including the lazy-loading Service that downgrades to fallback mode
// when the backing model cannot be initialized.
package embeddings

import (
	"context"
	"errors"
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding. Deterministic for
	// identical (text, model) pairs.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

var (
	// ErrUnavailable is returned by Service.Embed for every call after the
	// backing model failed to initialize. Callers treat it as the fallback
	// marker: the memory is stored without a vector and participates in
	// keyword retrieval only.
	ErrUnavailable = errors.New("embedding model unavailable")

	// ErrEmbedding is returned when a loaded model fails on a request.
	ErrEmbedding = errors.New("embedding failed")
)
