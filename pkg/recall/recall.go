// Package recall is the public façade over the memory layer. It owns the
// write path (validate, embed, persist, index, invalidate caches), delegates
// ranked reads to the search engine, and serializes writes per namespace so
// concurrent agents interleave without interfering.
package recall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/cache"
	"github.com/paperquant/recall/pkg/embeddings"
	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/patterns"
	"github.com/paperquant/recall/pkg/search"
	"github.com/paperquant/recall/pkg/vector"
)

const (
	// DefaultPinThreshold exempts memories at or above this importance from
	// retention sweeps.
	DefaultPinThreshold = 0.7

	// DecisionImportance is the fixed importance for trading decisions.
	DecisionImportance = 0.8

	// maxRetries bounds the exponential backoff on retryable storage
	// failures.
	maxRetries = 3
)

// Config holds the assembled dependencies and tuning for a Recall instance.
type Config struct {
	Store    memory.Driver
	Index    vector.Driver
	Embedder *embeddings.Service

	// Weights overrides search.DefaultWeights for hybrid queries when any
	// field is nonzero.
	Weights search.Weights

	// DecayDays overrides the recency decay constant when positive.
	DecayDays float64

	// CandidateMultiplier overrides the vector overfetch factor when
	// positive.
	CandidateMultiplier int

	// PinThreshold overrides DefaultPinThreshold when positive.
	PinThreshold float64

	EmbeddingCacheSize int
	QueryCacheSize     int
	QueryCacheTTL      time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Recall is the memory layer entry point. Safe for concurrent use.
type Recall struct {
	store    memory.Driver
	index    vector.Driver
	embedder *embeddings.Service

	engine     *search.Engine
	aggregator *patterns.Aggregator

	embCache   *cache.EmbeddingCache
	queryCache *cache.QueryCache[[]search.Result]

	weights      search.Weights
	pinThreshold float64
	now          func() time.Time

	// nsLocks serializes writes per namespace. Keys are namespace strings,
	// values *sync.Mutex.
	nsLocks sync.Map

	closeMu sync.Mutex
	closed  bool

	logger *zap.Logger
}

// New assembles a Recall instance and replays stored embeddings into the
// vector index. Replay makes non-persistent indexes survive restarts and
// heals the window where a crash left a row inserted but never indexed;
// registration is an upsert, so replaying already-indexed vectors is a no-op.
func New(ctx context.Context, c Config, logger *zap.Logger) (*Recall, error) {
	if c.Store == nil || c.Index == nil || c.Embedder == nil {
		return nil, fmt.Errorf("recall: store, index, and embedder are required")
	}

	embCache, err := cache.NewEmbeddingCache(c.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("recall: creating embedding cache: %w", err)
	}

	weights := c.Weights
	if weights == (search.Weights{}) {
		weights = search.DefaultWeights
	}

	pin := c.PinThreshold
	if pin <= 0 {
		pin = DefaultPinThreshold
	}

	now := c.Now
	if now == nil {
		now = time.Now
	}

	r := &Recall{
		store:        c.Store,
		index:        c.Index,
		embedder:     c.Embedder,
		embCache:     embCache,
		queryCache:   cache.NewQueryCache[[]search.Result](c.QueryCacheSize, c.QueryCacheTTL),
		weights:      weights,
		pinThreshold: pin,
		now:          now,
		logger:       logger,
	}

	r.engine = search.NewEngine(search.EngineConfig{
		Store:               c.Store,
		Index:               c.Index,
		Embedder:            c.Embedder,
		EmbeddingCache:      embCache,
		DecayDays:           c.DecayDays,
		CandidateMultiplier: c.CandidateMultiplier,
		Now:                 now,
	}, logger)

	r.aggregator = patterns.NewAggregator(c.Store, logger)

	if err := r.replayIndex(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// replayIndex registers every stored embedding with the vector index.
func (r *Recall) replayIndex(ctx context.Context) error {
	stored, err := r.store.Embeddings(ctx, "")
	if err != nil {
		return fmt.Errorf("recall: loading stored embeddings: %w", err)
	}
	if len(stored) == 0 {
		return nil
	}

	docs := make([]vector.Document, 0, len(stored))
	for _, s := range stored {
		docs = append(docs, vector.Document{
			ID:        s.ID,
			Namespace: s.Namespace,
			EventDate: s.EventDate,
			Embedding: s.Embedding,
		})
	}

	if err := r.index.Register(ctx, docs); err != nil {
		return fmt.Errorf("recall: replaying index: %w", err)
	}

	r.logger.Info("similarity index replayed",
		zap.Int("embeddings", len(docs)),
	)
	return nil
}

// AddMemory stores a new memory and returns its ID. When the embedding
// service is in fallback mode the memory is stored without a vector and
// participates in keyword retrieval only.
func (r *Recall) AddMemory(ctx context.Context, namespace string, kind memory.Kind, content string, eventDate time.Time, importance float64, metadata map[string]any) (string, error) {
	if namespace == "" {
		return "", &memory.ValidationError{Op: "add_memory", Reason: "namespace is empty"}
	}
	if content == "" {
		return "", &memory.ValidationError{Op: "add_memory", Namespace: namespace, Reason: "content is empty"}
	}
	if !kind.Valid() {
		return "", &memory.ValidationError{Op: "add_memory", Namespace: namespace, Reason: fmt.Sprintf("unrecognized kind %q", kind)}
	}
	if eventDate.IsZero() {
		eventDate = r.now().UTC()
	}

	emb, err := r.embedContent(ctx, content)
	if err != nil {
		return "", err
	}

	m := &memory.Memory{
		ID:         uuid.New().String(),
		Namespace:  namespace,
		Kind:       kind,
		Content:    content,
		Embedding:  emb,
		EventDate:  eventDate,
		Importance: memory.ClampImportance(importance),
		Metadata:   metadata,
		CreatedAt:  r.now().UTC(),
	}

	lock := r.nsLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	if err := r.retry(ctx, func() error { return r.store.Insert(ctx, m) }); err != nil {
		return "", err
	}

	if emb != nil {
		doc := vector.Document{ID: m.ID, Namespace: namespace, EventDate: eventDate, Embedding: emb}
		if err := r.index.Register(ctx, []vector.Document{doc}); err != nil {
			// Compensate so a memory never exists unindexed while the
			// index is healthy.
			if delErr := r.store.Delete(ctx, namespace, m.ID); delErr != nil {
				r.logger.Error("compensating delete failed, index replay will heal on restart",
					zap.String("namespace", namespace),
					zap.String("id", m.ID),
					zap.Error(delErr),
				)
			}
			return "", fmt.Errorf("recall: indexing memory: %w", err)
		}
	}

	r.queryCache.Invalidate(namespace)

	r.logger.Debug("memory added",
		zap.String("namespace", namespace),
		zap.String("id", m.ID),
		zap.String("kind", string(kind)),
		zap.Bool("indexed", emb != nil),
	)
	return m.ID, nil
}

// AddTradingDecision stores a structured decision as a single decision
// memory whose metadata mirrors the decision fields. Decisions carry a fixed
// importance of 0.8 so they survive retention sweeps.
func (r *Recall) AddTradingDecision(ctx context.Context, namespace string, d memory.TradingDecision) (string, error) {
	if !d.Action.Valid() {
		return "", &memory.ValidationError{Op: "add_decision", Namespace: namespace, Reason: fmt.Sprintf("unrecognized action %q", d.Action)}
	}
	if d.Symbol == "" {
		return "", &memory.ValidationError{Op: "add_decision", Namespace: namespace, Reason: "symbol is empty"}
	}
	if d.Quantity < 0 {
		return "", &memory.ValidationError{Op: "add_decision", Namespace: namespace, Reason: "quantity is negative"}
	}

	return r.AddMemory(ctx, namespace, memory.KindDecision,
		memory.DecisionContent(d), d.Date, DecisionImportance, memory.DecisionMetadata(d))
}

// GetByID retrieves one memory. Returns *memory.NotFoundError on a miss.
func (r *Recall) GetByID(ctx context.Context, namespace, id string) (*memory.Memory, error) {
	if namespace == "" {
		return nil, &memory.ValidationError{Op: "get", Reason: "namespace is empty"}
	}

	var m *memory.Memory
	err := r.retry(ctx, func() error {
		var err error
		m, err = r.store.GetByID(ctx, namespace, id)
		return err
	})
	return m, err
}

// SemanticSearch ranks by vector similarity alone.
func (r *Recall) SemanticSearch(ctx context.Context, namespace, query string, topK int) ([]search.Result, error) {
	return r.cachedSearch(ctx, namespace, query, topK, memory.Filters{}, search.SemanticWeights)
}

// HybridSearch blends similarity with recency decay and importance, after
// pruning candidates by the structured filters.
func (r *Recall) HybridSearch(ctx context.Context, namespace, query string, topK int, f memory.Filters) ([]search.Result, error) {
	return r.cachedSearch(ctx, namespace, query, topK, f, r.weights)
}

func (r *Recall) cachedSearch(ctx context.Context, namespace, query string, topK int, f memory.Filters, w search.Weights) ([]search.Result, error) {
	fp := fingerprint(query, topK, f, w)
	if results, ok := r.queryCache.Get(namespace, fp); ok {
		return results, nil
	}

	results, err := r.engine.Search(ctx, namespace, query, topK, f, w)
	if err != nil {
		return nil, err
	}

	r.queryCache.Put(namespace, fp, results)
	return results, nil
}

// fingerprint keys the query cache on everything that changes the result set
// besides the stored state itself.
func fingerprint(query string, topK int, f memory.Filters, w search.Weights) string {
	return fmt.Sprintf("%q|%d|%v|%s|%s|%v|%g|%q|%g|%g|%g",
		query, topK, f.Kinds,
		f.DateFrom.Format(time.RFC3339Nano), f.DateTo.Format(time.RFC3339Nano),
		f.Metadata, f.MinImportance, f.Keyword,
		w.Similarity, w.Recency, w.Importance,
	)
}

// ObservePattern folds one observation into the named pattern aggregate and
// returns the pattern ID.
func (r *Recall) ObservePattern(ctx context.Context, namespace, description string, success bool, observed time.Time) (string, error) {
	if observed.IsZero() {
		observed = r.now().UTC()
	}

	lock := r.nsLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	var id string
	err := r.retry(ctx, func() error {
		var err error
		id, err = r.aggregator.Observe(ctx, namespace, description, success, observed)
		return err
	})
	return id, err
}

// Patterns returns all aggregated patterns in the namespace.
func (r *Recall) Patterns(ctx context.Context, namespace string) ([]*memory.MarketPattern, error) {
	return r.aggregator.List(ctx, namespace)
}

// SetImportance overwrites a memory's importance, clamped to [0,1].
func (r *Recall) SetImportance(ctx context.Context, namespace, id string, importance float64) error {
	if namespace == "" {
		return &memory.ValidationError{Op: "set_importance", Reason: "namespace is empty"}
	}

	lock := r.nsLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	err := r.retry(ctx, func() error {
		return r.store.UpdateImportance(ctx, namespace, id, memory.ClampImportance(importance))
	})
	if err != nil {
		return err
	}

	r.queryCache.Invalidate(namespace)
	return nil
}

// RecordOutcome annotates a decision memory with its realized outcome and
// profit or loss once known. Content stays immutable; the annotation lives in
// metadata.
func (r *Recall) RecordOutcome(ctx context.Context, namespace, id, outcome string, profitLoss float64) error {
	if namespace == "" {
		return &memory.ValidationError{Op: "record_outcome", Reason: "namespace is empty"}
	}
	if outcome == "" {
		return &memory.ValidationError{Op: "record_outcome", Namespace: namespace, Reason: "outcome is empty"}
	}

	lock := r.nsLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	m, err := r.store.GetByID(ctx, namespace, id)
	if err != nil {
		return err
	}

	meta := make(map[string]any, len(m.Metadata)+2)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta["outcome"] = outcome
	meta["profit_loss"] = profitLoss

	err = r.retry(ctx, func() error {
		return r.store.UpdateMetadata(ctx, namespace, id, meta)
	})
	if err != nil {
		return err
	}

	r.queryCache.Invalidate(namespace)
	return nil
}

// RecentDecisions returns decision memories from the last given days, newest
// first, optionally restricted to one symbol.
func (r *Recall) RecentDecisions(ctx context.Context, namespace string, days int, symbol string) ([]*memory.Memory, error) {
	if namespace == "" {
		return nil, &memory.ValidationError{Op: "recent_decisions", Reason: "namespace is empty"}
	}
	if days <= 0 {
		days = 7
	}

	f := memory.Filters{
		Kinds:    []memory.Kind{memory.KindDecision},
		DateFrom: r.now().UTC().AddDate(0, 0, -days),
	}
	if symbol != "" {
		f.Metadata = map[string]any{"symbol": symbol}
	}

	var mems []*memory.Memory
	err := r.retry(ctx, func() error {
		var err error
		mems, err = r.store.List(ctx, namespace, f)
		return err
	})
	return mems, err
}

// ClearOldMemories removes memories older than the given number of days,
// keeping those whose importance meets the pin threshold. Returns the number
// removed. Removed vectors are dropped from the index in the same call.
func (r *Recall) ClearOldMemories(ctx context.Context, namespace string, days int) (int, error) {
	if namespace == "" {
		return 0, &memory.ValidationError{Op: "clear_old", Reason: "namespace is empty"}
	}
	if days <= 0 {
		return 0, &memory.ValidationError{Op: "clear_old", Namespace: namespace, Reason: "days must be positive"}
	}

	cutoff := r.now().UTC().AddDate(0, 0, -days)

	lock := r.nsLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	var removed []string
	err := r.retry(ctx, func() error {
		var err error
		removed, err = r.store.DeleteOlderThan(ctx, namespace, cutoff, r.pinThreshold)
		return err
	})
	if err != nil {
		return 0, err
	}

	if len(removed) > 0 {
		if err := r.index.Remove(ctx, namespace, removed); err != nil {
			// Rows are already gone; stale vectors resolve to misses on
			// the read path and disappear on the next restart replay.
			r.logger.Warn("removing swept vectors from index failed",
				zap.String("namespace", namespace),
				zap.Int("count", len(removed)),
				zap.Error(err),
			)
		}
		r.queryCache.Invalidate(namespace)
	}

	r.logger.Info("retention sweep completed",
		zap.String("namespace", namespace),
		zap.Int("removed", len(removed)),
		zap.Time("cutoff", cutoff),
	)
	return len(removed), nil
}

// Statistics derives namespace statistics from stored state at call time.
// Never cached, so counts reflect completed writes immediately.
func (r *Recall) Statistics(ctx context.Context, namespace string) (*memory.Stats, error) {
	if namespace == "" {
		return nil, &memory.ValidationError{Op: "stats", Reason: "namespace is empty"}
	}

	var stats *memory.Stats
	err := r.retry(ctx, func() error {
		var err error
		stats, err = r.store.Stats(ctx, namespace)
		return err
	})
	return stats, err
}

// Fallback reports whether the embedding service is in fallback mode.
func (r *Recall) Fallback() bool {
	return r.embedder.Fallback()
}

// Close releases the embedder, index, and store. Idempotent.
func (r *Recall) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return errors.Join(
		r.embedder.Close(),
		r.index.Close(),
		r.store.Close(),
	)
}

// embedContent resolves a vector for new content through the embedding
// cache. A fallback-mode embedder yields a nil vector, not an error.
func (r *Recall) embedContent(ctx context.Context, content string) ([]float32, error) {
	if emb, ok := r.embCache.Get(r.embedder.ModelVersion(), content); ok {
		return emb, nil
	}

	emb, err := r.embedder.Embed(ctx, content)
	if errors.Is(err, embeddings.ErrUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recall: embedding content: %w", err)
	}

	r.embCache.Put(r.embedder.ModelVersion(), content, emb)
	return emb, nil
}

func (r *Recall) nsLock(namespace string) *sync.Mutex {
	v, _ := r.nsLocks.LoadOrStore(namespace, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// retry runs op with bounded exponential backoff, retrying only storage
// medium failures. Validation and not-found errors surface immediately.
func (r *Recall) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if memory.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}
