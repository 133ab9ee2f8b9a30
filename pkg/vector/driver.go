// Package vector provides interfaces and implementations for the similarity
// index over stored memory embeddings.
package vector

import (
	"context"
	"time"
)

// Document represents an indexed embedding with the fields needed for
// deterministic ranking.
type Document struct {
	// ID is the memory ID the vector belongs to.
	ID string

	// Namespace scopes the document to one agent.
	Namespace string

	// EventDate is the memory's event date, used for tie-breaking.
	EventDate time.Time

	// Embedding is the vector representation of the memory content.
	Embedding []float32
}

// QueryResult represents a search result with its cosine similarity.
type QueryResult struct {
	Document

	// Similarity is the cosine similarity to the query vector, in [-1,1].
	Similarity float64
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Register stores documents. A document with an existing ID is
	// updated, so replaying the index at startup is idempotent.
	Register(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents within a namespace,
	// sorted by similarity descending with ties broken by more recent
	// event date, then lower ID. Returns fewer results when the
	// namespace holds fewer entries, and an empty slice for an empty
	// index.
	Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]QueryResult, error)

	// Remove deletes documents by ID. Unknown IDs are ignored.
	Remove(ctx context.Context, namespace string, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
