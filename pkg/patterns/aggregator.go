// Package patterns maintains aggregated market pattern statistics. Each
// distinct (namespace, description) pair maps to one pattern row whose
// occurrence count and success rate are folded incrementally as observations
// arrive, rather than storing one row per observation.
package patterns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/memory"
)

// Aggregator folds pattern observations into per-description aggregates.
// Concurrent observations of the same description must be serialized by the
// caller (the recall façade holds the namespace write lock).
type Aggregator struct {
	store  memory.Driver
	logger *zap.Logger
}

func NewAggregator(store memory.Driver, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Observe records one observation of the described pattern and returns the
// pattern's ID. The first observation of a description creates the aggregate;
// later ones increment the count and fold the outcome into the success rate
// as an incremental mean, so the rate always equals successes/occurrences
// without a separate success counter.
func (a *Aggregator) Observe(ctx context.Context, namespace, description string, success bool, observed time.Time) (string, error) {
	if namespace == "" {
		return "", &memory.ValidationError{Op: "observe_pattern", Reason: "namespace is empty"}
	}
	if description == "" {
		return "", &memory.ValidationError{Op: "observe_pattern", Namespace: namespace, Reason: "description is empty"}
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}

	now := time.Now().UTC()

	p, err := a.store.GetPatternByDescription(ctx, namespace, description)
	var notFound *memory.NotFoundError
	switch {
	case errors.As(err, &notFound):
		p = &memory.MarketPattern{
			ID:              uuid.New().String(),
			Namespace:       namespace,
			Description:     description,
			OccurrenceCount: 1,
			SuccessRate:     outcome,
			LastObserved:    observed,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	case err != nil:
		return "", err
	default:
		p.OccurrenceCount++
		p.SuccessRate += (outcome - p.SuccessRate) / float64(p.OccurrenceCount)
		if observed.After(p.LastObserved) {
			p.LastObserved = observed
		}
		p.UpdatedAt = now
	}

	if err := a.store.PutPattern(ctx, p); err != nil {
		return "", err
	}

	a.logger.Debug("pattern observed",
		zap.String("namespace", namespace),
		zap.String("pattern_id", p.ID),
		zap.Int64("occurrences", p.OccurrenceCount),
		zap.Float64("success_rate", p.SuccessRate),
	)

	return p.ID, nil
}

// List returns all aggregated patterns in the namespace.
func (a *Aggregator) List(ctx context.Context, namespace string) ([]*memory.MarketPattern, error) {
	if namespace == "" {
		return nil, &memory.ValidationError{Op: "list_patterns", Reason: "namespace is empty"}
	}
	return a.store.ListPatterns(ctx, namespace)
}
