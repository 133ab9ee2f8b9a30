// Package chromem provides a similarity index backed by chromem-go, a pure
// Go embedded vector database. Each namespace maps to its own collection.
package chromem

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/vector"
)

// Driver implements vector.Driver using chromem-go collections.
type Driver struct {
	db          *chromemgo.DB
	mu          sync.RWMutex
	collections map[string]*chromemgo.Collection
	logger      *zap.Logger
}

// Config holds configuration for the chromem driver.
type Config struct {
	// Path is the directory for persistent storage. Empty keeps the index
	// in memory only, relying on startup replay from the memory store.
	Path string
}

// NewDriver creates a chromem-backed similarity index.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	var db *chromemgo.DB
	var err error

	if c.Path != "" {
		db, err = chromemgo.NewPersistentDB(c.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem db: %v", vector.ErrConnection, err)
		}
	} else {
		db = chromemgo.NewDB()
	}

	logger.Info("chromem similarity index initialized",
		zap.String("path", c.Path),
	)

	return &Driver{
		db:          db,
		collections: make(map[string]*chromemgo.Collection),
		logger:      logger,
	}, nil
}

// collection returns the namespace's collection, creating it on first use.
func (d *Driver) collection(namespace string) (*chromemgo.Collection, error) {
	d.mu.RLock()
	col, ok := d.collections[namespace]
	d.mu.RUnlock()
	if ok {
		return col, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if col, ok := d.collections[namespace]; ok {
		return col, nil
	}

	name := "ns_" + namespace
	// Embeddings are provided by the caller, so no embedding func is set.
	col, err := d.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	d.collections[namespace] = col
	return col, nil
}

// Register stores documents, updating any existing IDs.
func (d *Driver) Register(ctx context.Context, docs []vector.Document) error {
	for _, doc := range docs {
		col, err := d.collection(doc.Namespace)
		if err != nil {
			return err
		}

		err = col.AddDocument(ctx, chromemgo.Document{
			ID: doc.ID,
			// chromem requires non-empty content; the memory ID stands in
			// since content lives in the memory store.
			Content:   doc.ID,
			Embedding: doc.Embedding,
			Metadata: map[string]string{
				"namespace":  doc.Namespace,
				"event_date": doc.EventDate.UTC().Format(time.RFC3339Nano),
			},
		})
		if err != nil {
			return fmt.Errorf("adding document %s: %w", doc.ID, err)
		}
	}

	d.logger.Debug("registered documents in chromem",
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents within a namespace.
func (d *Driver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	col, err := d.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= collection size.
	n := topK
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []vector.QueryResult{}, nil
	}

	raw, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(raw))
	for _, r := range raw {
		eventDate, err := time.Parse(time.RFC3339Nano, r.Metadata["event_date"])
		if err != nil {
			return nil, fmt.Errorf("parsing event date for doc %s: %w", r.ID, err)
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				Namespace: namespace,
				EventDate: eventDate,
				Embedding: r.Embedding,
			},
			Similarity: float64(r.Similarity),
		})
	}

	vector.SortResults(results)

	return results, nil
}

// Remove deletes documents by ID.
func (d *Driver) Remove(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := d.collection(namespace)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	return nil
}

// Close is a no-op; chromem flushes persistent state on every write.
func (d *Driver) Close() error {
	return nil
}

// Ensure Driver implements vector.Driver.
var _ vector.Driver = (*Driver)(nil)
