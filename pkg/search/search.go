// Package search implements hybrid retrieval over the memory store: semantic
// similarity from the vector index blended with recency decay and stored
// importance. When the embedding service is in fallback mode the engine
// degrades to keyword containment with the similarity term neutralized.
package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/cache"
	"github.com/paperquant/recall/pkg/embeddings"
	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/vector"
)

const (
	// DefaultDecayDays is the exponential recency decay constant. A memory
	// 30 days old scores 1/e on the recency term.
	DefaultDecayDays = 30.0

	// DefaultCandidateMultiplier overfetches from the vector index before
	// filters and reranking shrink the set to topK.
	DefaultCandidateMultiplier = 4
)

// Weights blends the three ranking terms. They are used as given; callers
// wanting a pure ordering pass zero for the terms they exclude.
type Weights struct {
	Similarity float64
	Recency    float64
	Importance float64
}

// DefaultWeights is the hybrid ranking blend.
var DefaultWeights = Weights{Similarity: 0.5, Recency: 0.2, Importance: 0.3}

// SemanticWeights ranks by similarity alone.
var SemanticWeights = Weights{Similarity: 1.0}

// Result is one ranked memory with its score breakdown.
type Result struct {
	Memory *memory.Memory `json:"memory"`

	// Score is the composite ranking score.
	Score float64 `json:"score"`

	// Similarity is the cosine similarity term. Fixed at 1.0 on the
	// fallback keyword path, where no vector comparison happened.
	Similarity float64 `json:"similarity"`

	// Recency is exp(-ageDays/decayDays) at query time.
	Recency float64 `json:"recency"`
}

// Engine runs hybrid and semantic queries.
type Engine struct {
	store    memory.Driver
	index    vector.Driver
	embedder *embeddings.Service
	embCache *cache.EmbeddingCache

	decayDays  float64
	multiplier int
	now        func() time.Time

	logger *zap.Logger
}

// EngineConfig holds configuration for the search Engine.
type EngineConfig struct {
	Store    memory.Driver
	Index    vector.Driver
	Embedder *embeddings.Service

	// EmbeddingCache is optional; when set, query embeddings are memoized
	// by (model version, text).
	EmbeddingCache *cache.EmbeddingCache

	// DecayDays overrides DefaultDecayDays when positive.
	DecayDays float64

	// CandidateMultiplier overrides DefaultCandidateMultiplier when positive.
	CandidateMultiplier int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewEngine(c EngineConfig, logger *zap.Logger) *Engine {
	decay := c.DecayDays
	if decay <= 0 {
		decay = DefaultDecayDays
	}
	mult := c.CandidateMultiplier
	if mult <= 0 {
		mult = DefaultCandidateMultiplier
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:      c.Store,
		index:      c.Index,
		embedder:   c.Embedder,
		embCache:   c.EmbeddingCache,
		decayDays:  decay,
		multiplier: mult,
		now:        now,
		logger:     logger,
	}
}

// Search runs a ranked query. With DefaultWeights this is hybrid retrieval;
// with SemanticWeights the ordering matches the vector index alone. An empty
// result set is a valid answer, never an error.
func (e *Engine) Search(ctx context.Context, namespace, query string, topK int, f memory.Filters, w Weights) ([]Result, error) {
	if namespace == "" {
		return nil, &memory.ValidationError{Op: "search", Reason: "namespace is empty"}
	}
	if topK <= 0 {
		return []Result{}, nil
	}

	emb, err := e.queryEmbedding(ctx, query)
	switch {
	case errors.Is(err, embeddings.ErrUnavailable):
		return e.keywordSearch(ctx, namespace, query, topK, f, w)
	case err != nil:
		return nil, err
	}

	hits, err := e.index.Query(ctx, namespace, emb, topK*e.multiplier)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, 0, len(hits))
	simByID := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		simByID[h.ID] = h.Similarity
	}

	mems, err := e.store.GetMany(ctx, namespace, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(mems))
	for _, m := range mems {
		if !f.Match(m) {
			continue
		}
		results = append(results, e.score(m, simByID[m.ID], w))
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// keywordSearch is the fallback retrieval path: candidates are selected by
// case-insensitive substring containment and the similarity term is fixed at
// 1.0, so ranking degrades to recency and importance.
func (e *Engine) keywordSearch(ctx context.Context, namespace, query string, topK int, f memory.Filters, w Weights) ([]Result, error) {
	e.logger.Debug("similarity unavailable, using keyword retrieval",
		zap.String("namespace", namespace),
	)

	f.Keyword = query
	mems, err := e.store.List(ctx, namespace, f)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(mems))
	for _, m := range mems {
		results = append(results, e.score(m, 1.0, w))
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// queryEmbedding resolves the query vector through the embedding cache.
func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if e.embCache != nil {
		if emb, ok := e.embCache.Get(e.embedder.ModelVersion(), query); ok {
			return emb, nil
		}
	}

	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if e.embCache != nil {
		e.embCache.Put(e.embedder.ModelVersion(), query, emb)
	}
	return emb, nil
}

func (e *Engine) score(m *memory.Memory, similarity float64, w Weights) Result {
	recency := e.recency(m.EventDate)
	return Result{
		Memory:     m,
		Similarity: similarity,
		Recency:    recency,
		Score:      w.Similarity*similarity + w.Recency*recency + w.Importance*m.Importance,
	}
}

// recency computes exp(-ageDays/decayDays). Future-dated memories clamp to
// age zero rather than scoring above 1.
func (e *Engine) recency(eventDate time.Time) float64 {
	ageDays := e.now().Sub(eventDate).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / e.decayDays)
}

// sortResults orders by composite score descending, with the same tie-break
// chain the vector drivers use so rankings stay deterministic end to end.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Memory.EventDate.Equal(results[j].Memory.EventDate) {
			return results[i].Memory.EventDate.After(results[j].Memory.EventDate)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}
