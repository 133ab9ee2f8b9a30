// Package cache provides the two read-side caches for the memory layer: a
// bounded LRU for computed embeddings and a TTL-bounded LRU for query results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultEmbeddingEntries bounds the embedding cache.
	DefaultEmbeddingEntries = 4096

	// DefaultQueryEntries bounds the query result cache.
	DefaultQueryEntries = 512

	// DefaultQueryTTL expires cached query results.
	DefaultQueryTTL = 30 * time.Second
)

// keySep joins key components. NUL never appears in namespaces or model
// versions, so joined keys cannot collide.
const keySep = "\x00"

// EmbeddingKey derives the embedding cache key for a (model, content) pair.
// Content is hashed so arbitrarily large texts produce fixed-size keys.
func EmbeddingKey(modelVersion, content string) string {
	sum := sha256.Sum256([]byte(content))
	return modelVersion + keySep + hex.EncodeToString(sum[:])
}

// EmbeddingCache is a bounded LRU of computed embeddings keyed by
// (model version, content hash). Entries never expire; identical text under
// the same model always embeds to the same vector.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

func NewEmbeddingCache(size int) (*EmbeddingCache, error) {
	if size <= 0 {
		size = DefaultEmbeddingEntries
	}
	l, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{lru: l}, nil
}

func (c *EmbeddingCache) Get(modelVersion, content string) ([]float32, bool) {
	return c.lru.Get(EmbeddingKey(modelVersion, content))
}

func (c *EmbeddingCache) Put(modelVersion, content string, embedding []float32) {
	c.lru.Add(EmbeddingKey(modelVersion, content), embedding)
}

func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}

// QueryCache is a TTL-bounded LRU of search results keyed by namespace plus
// an opaque request fingerprint. Writers invalidate per namespace so readers
// after a write in the same namespace never see the pre-write result set.
type QueryCache[V any] struct {
	lru *expirable.LRU[string, V]
}

func NewQueryCache[V any](size int, ttl time.Duration) *QueryCache[V] {
	if size <= 0 {
		size = DefaultQueryEntries
	}
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

func (c *QueryCache[V]) Get(namespace, fingerprint string) (V, bool) {
	return c.lru.Get(namespace + keySep + fingerprint)
}

func (c *QueryCache[V]) Put(namespace, fingerprint string, v V) {
	c.lru.Add(namespace+keySep+fingerprint, v)
}

// Invalidate drops every cached result for the namespace.
func (c *QueryCache[V]) Invalidate(namespace string) {
	prefix := namespace + keySep
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func (c *QueryCache[V]) Len() int {
	return c.lru.Len()
}
