// Package linear provides an exact, in-process similarity index.
//
// Every query is a full cosine scan over the namespace, which is the
// reference ranking for the sizes this system is tested at (a few thousand
// entries). The index holds no durable state of its own; the recall façade
// replays stored embeddings into it at startup.
package linear

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/vector"
)

// Driver implements vector.Driver with an exact linear scan.
type Driver struct {
	mu     sync.RWMutex
	docs   map[string]map[string]vector.Document // namespace -> id -> doc
	dim    int
	logger *zap.Logger
}

// NewDriver creates an empty linear index. Dimension is fixed by the first
// registered document.
func NewDriver(logger *zap.Logger) *Driver {
	return &Driver{
		docs:   make(map[string]map[string]vector.Document),
		logger: logger,
	}
}

// Register stores documents, updating any existing IDs.
func (d *Driver) Register(_ context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		if d.dim == 0 {
			d.dim = len(doc.Embedding)
		} else if len(doc.Embedding) != d.dim {
			return fmt.Errorf("%w: got %d, index holds %d", vector.ErrDimensionMismatch, len(doc.Embedding), d.dim)
		}

		ns := d.docs[doc.Namespace]
		if ns == nil {
			ns = make(map[string]vector.Document)
			d.docs[doc.Namespace] = ns
		}
		ns[doc.ID] = doc
	}

	d.logger.Debug("registered documents", zap.Int("count", len(docs)))
	return nil
}

// Query scans the namespace and returns the topK most similar documents.
func (d *Driver) Query(_ context.Context, namespace string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ns := d.docs[namespace]
	if len(ns) == 0 {
		return []vector.QueryResult{}, nil
	}

	if d.dim != 0 && len(embedding) != d.dim {
		return nil, fmt.Errorf("%w: got %d, index holds %d", vector.ErrDimensionMismatch, len(embedding), d.dim)
	}

	results := make([]vector.QueryResult, 0, len(ns))
	for _, doc := range ns {
		results = append(results, vector.QueryResult{
			Document:   doc,
			Similarity: vector.Cosine(embedding, doc.Embedding),
		})
	}

	vector.SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Remove deletes documents by ID.
func (d *Driver) Remove(_ context.Context, namespace string, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ns := d.docs[namespace]
	for _, id := range ids {
		delete(ns, id)
	}

	return nil
}

// Close is a no-op for the in-process index.
func (d *Driver) Close() error {
	return nil
}

// Ensure Driver implements vector.Driver.
var _ vector.Driver = (*Driver)(nil)
