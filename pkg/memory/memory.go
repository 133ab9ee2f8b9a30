// Package memory defines the data model and storage driver interface for the
// recall memory layer.
//
// A Memory is one unit of recorded experience: something the agent observed
// or decided on a given trading day. Memories are namespaced by agent
// identity, carry an embedding for semantic retrieval, and are append-mostly:
// after creation only importance, outcome annotations, and pattern counters
// may change.
//
// Storage drivers are pluggable via configuration:
//
//	[storage]
//	provider = "sqlite"   # or "postgres"
package memory

import (
	"fmt"
	"time"
)

// Kind is the closed set of memory variants. Every consumer handles all four
// exhaustively; an unrecognized kind is a validation error at the write
// boundary, never a silently dropped record.
type Kind string

const (
	KindObservation Kind = "observation"
	KindDecision    Kind = "decision"
	KindPattern     Kind = "pattern"
	KindEpisodic    Kind = "episodic"
)

// Kinds lists all recognized memory kinds.
var Kinds = []Kind{KindObservation, KindDecision, KindPattern, KindEpisodic}

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindObservation, KindDecision, KindPattern, KindEpisodic:
		return true
	}
	return false
}

// Action is a trading action variant.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Memory is a single recorded experience.
type Memory struct {
	// ID uniquely identifies the memory. Assigned at creation, never reused.
	ID string `json:"id"`

	// Namespace is the owning agent's identity. All reads and writes are
	// scoped to one namespace.
	Namespace string `json:"namespace"`

	// Kind tags the memory variant.
	Kind Kind `json:"kind"`

	// Content is the free-text body. Immutable once written.
	Content string `json:"content"`

	// Embedding is the vector derived from Content. Nil when the memory was
	// written while the embedding service was in fallback mode; such
	// memories are excluded from similarity scoring but remain reachable
	// via keyword containment.
	Embedding []float32 `json:"-"`

	// EventDate is the trading date the memory pertains to, which is not
	// necessarily the write time.
	EventDate time.Time `json:"event_date"`

	// Importance weights the memory in hybrid ranking, clamped to [0,1].
	// Mutable post-hoc, e.g. after an outcome is known.
	Importance float64 `json:"importance"`

	// Metadata holds structured scalar fields (symbol, price, quantity).
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is the write timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// TradingDecision is a structured record of an action taken. It always
// materializes as one Memory of KindDecision whose metadata mirrors these
// fields, written atomically as a single logical entity.
type TradingDecision struct {
	Date      time.Time `json:"date"`
	Action    Action    `json:"action"`
	Symbol    string    `json:"symbol"`
	Reasoning string    `json:"reasoning"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
}

// MarketPattern is an aggregated, evolving belief derived from multiple
// memories over time. Occurrence count only increases; the success rate is
// an incrementally maintained mean in [0,1].
type MarketPattern struct {
	ID              string    `json:"id"`
	Namespace       string    `json:"namespace"`
	Description     string    `json:"description"`
	OccurrenceCount int64     `json:"occurrence_count"`
	SuccessRate     float64   `json:"success_rate"`
	LastObserved    time.Time `json:"last_observed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stats summarizes a namespace's stored state.
type Stats struct {
	TotalMemories  int64          `json:"total_memories"`
	CountsByKind   map[Kind]int64 `json:"counts_by_kind"`
	TotalDecisions int64          `json:"total_decisions"`
	TotalPatterns  int64          `json:"total_patterns"`
	AvgImportance  float64        `json:"avg_importance"`
}

// Filters constrain candidate memories in structured queries. Zero values
// mean "no constraint".
type Filters struct {
	// Kinds restricts results to the listed variants.
	Kinds []Kind

	// DateFrom and DateTo bound EventDate inclusively.
	DateFrom time.Time
	DateTo   time.Time

	// Metadata holds equality predicates matched against Memory.Metadata.
	Metadata map[string]any

	// MinImportance drops candidates below the threshold.
	MinImportance float64

	// Keyword restricts results to memories whose content contains the
	// substring, case-insensitive. Used on the fallback retrieval path.
	Keyword string
}

// Empty reports whether no constraint is set.
func (f Filters) Empty() bool {
	return len(f.Kinds) == 0 && f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		len(f.Metadata) == 0 && f.MinImportance == 0 && f.Keyword == ""
}

// Match reports whether m satisfies every filter predicate. Drivers may push
// kind/date/keyword constraints into SQL; Match is the authoritative check
// and handles metadata equality, which stays in Go to keep both SQL dialects
// simple.
func (f Filters) Match(m *Memory) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if m.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !f.DateFrom.IsZero() && m.EventDate.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && m.EventDate.After(f.DateTo) {
		return false
	}

	if m.Importance < f.MinImportance {
		return false
	}

	for key, want := range f.Metadata {
		got, ok := m.Metadata[key]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}

	return true
}

// scalarEqual compares metadata scalars loosely enough to survive a JSON
// round-trip, where ints come back as float64.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ClampImportance clamps v into [0,1]. Applied on every write and update so
// the stored invariant holds regardless of caller input.
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DecisionContent renders the embedded text for a trading decision memory.
func DecisionContent(d TradingDecision) string {
	return fmt.Sprintf("Trading decision: %s %s\nReasoning: %s", d.Action, d.Symbol, d.Reasoning)
}

// DecisionMetadata builds the metadata mirror for a trading decision memory.
func DecisionMetadata(d TradingDecision) map[string]any {
	return map[string]any{
		"action":   string(d.Action),
		"symbol":   d.Symbol,
		"price":    d.Price,
		"quantity": d.Quantity,
	}
}
