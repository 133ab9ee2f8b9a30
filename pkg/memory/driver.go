package memory

import (
	"context"
	"time"
)

// StoredEmbedding pairs a memory's identity with its stored vector, used to
// replay the similarity index at startup.
type StoredEmbedding struct {
	ID        string
	Namespace string
	EventDate time.Time
	Embedding []float32
}

// Driver is the storage backend for memories and market patterns. All
// operations are namespace-scoped. Implementations must persist embeddings
// alongside rows so the similarity index can be rebuilt after a restart.
//
// Write serialization per namespace is the caller's responsibility (the
// recall façade holds a per-namespace lock); drivers only guarantee that
// individual operations are atomic.
type Driver interface {
	// Insert persists a new memory row, embedding included.
	Insert(ctx context.Context, m *Memory) error

	// GetByID retrieves one memory. Returns *NotFoundError on a miss.
	GetByID(ctx context.Context, namespace, id string) (*Memory, error)

	// GetMany retrieves memories by ID, skipping misses. Result order is
	// unspecified.
	GetMany(ctx context.Context, namespace string, ids []string) ([]*Memory, error)

	// List returns all memories in the namespace matching the filters,
	// ordered by event date descending.
	List(ctx context.Context, namespace string, f Filters) ([]*Memory, error)

	// UpdateImportance overwrites a memory's importance. The value must
	// already be clamped.
	UpdateImportance(ctx context.Context, namespace, id string, importance float64) error

	// UpdateMetadata replaces a memory's metadata map.
	UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]any) error

	// Delete removes a single memory row. Used only for write-path
	// compensation when vector registration fails after an insert.
	Delete(ctx context.Context, namespace, id string) error

	// DeleteOlderThan removes memories whose event date is before cutoff
	// and whose importance is below pinThreshold, returning the IDs
	// removed so their vectors can be dropped from the index.
	DeleteOlderThan(ctx context.Context, namespace string, cutoff time.Time, pinThreshold float64) ([]string, error)

	// Embeddings streams the stored vectors for index replay. An empty
	// namespace selects every namespace. Memories written in fallback mode
	// (nil embedding) are skipped.
	Embeddings(ctx context.Context, namespace string) ([]StoredEmbedding, error)

	// GetPatternByDescription looks up a pattern by exact description.
	// Returns *NotFoundError on a miss.
	GetPatternByDescription(ctx context.Context, namespace, description string) (*MarketPattern, error)

	// PutPattern inserts or fully replaces a pattern row keyed by ID.
	PutPattern(ctx context.Context, p *MarketPattern) error

	// ListPatterns returns all patterns in the namespace.
	ListPatterns(ctx context.Context, namespace string) ([]*MarketPattern, error)

	// Stats derives namespace statistics from the stored state at call
	// time.
	Stats(ctx context.Context, namespace string) (*Stats, error)

	// Close releases the underlying medium. Safe to call multiple times.
	Close() error
}
