package memory_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperquant/recall/pkg/memory"
)

func TestMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Suite")
}

var _ = Describe("Kind", func() {
	It("accepts all recognized kinds", func() {
		for _, k := range memory.Kinds {
			Expect(k.Valid()).To(BeTrue())
		}
	})

	It("rejects unknown kinds", func() {
		Expect(memory.Kind("sentiment").Valid()).To(BeFalse())
		Expect(memory.Kind("").Valid()).To(BeFalse())
	})
})

var _ = Describe("ClampImportance", func() {
	It("clamps values into [0,1]", func() {
		Expect(memory.ClampImportance(-0.5)).To(Equal(0.0))
		Expect(memory.ClampImportance(1.5)).To(Equal(1.0))
		Expect(memory.ClampImportance(0.42)).To(Equal(0.42))
	})
})

var _ = Describe("Filters", func() {
	var m *memory.Memory

	BeforeEach(func() {
		m = &memory.Memory{
			ID:         "m1",
			Namespace:  "agent",
			Kind:       memory.KindDecision,
			Content:    "Trading decision: buy NVDA",
			EventDate:  time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
			Importance: 0.8,
			Metadata:   map[string]any{"symbol": "NVDA", "price": 475.5},
		}
	})

	It("matches with no constraints", func() {
		Expect(memory.Filters{}.Match(m)).To(BeTrue())
		Expect(memory.Filters{}.Empty()).To(BeTrue())
	})

	It("filters by kind", func() {
		Expect(memory.Filters{Kinds: []memory.Kind{memory.KindDecision}}.Match(m)).To(BeTrue())
		Expect(memory.Filters{Kinds: []memory.Kind{memory.KindObservation}}.Match(m)).To(BeFalse())
	})

	It("bounds event date inclusively", func() {
		f := memory.Filters{
			DateFrom: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		}
		Expect(f.Match(m)).To(BeTrue())

		f.DateFrom = time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
		Expect(f.Match(m)).To(BeFalse())
	})

	It("filters by minimum importance", func() {
		Expect(memory.Filters{MinImportance: 0.8}.Match(m)).To(BeTrue())
		Expect(memory.Filters{MinImportance: 0.9}.Match(m)).To(BeFalse())
	})

	It("matches metadata equality across a JSON round-trip", func() {
		Expect(memory.Filters{Metadata: map[string]any{"symbol": "NVDA"}}.Match(m)).To(BeTrue())
		// Stored as float64 after JSON decode, queried as int
		m.Metadata["quantity"] = 10.0
		Expect(memory.Filters{Metadata: map[string]any{"quantity": 10}}.Match(m)).To(BeTrue())
		Expect(memory.Filters{Metadata: map[string]any{"symbol": "AAPL"}}.Match(m)).To(BeFalse())
		Expect(memory.Filters{Metadata: map[string]any{"missing": "x"}}.Match(m)).To(BeFalse())
	})
})

var _ = Describe("DecisionContent", func() {
	It("renders the action, symbol, and reasoning", func() {
		d := memory.TradingDecision{
			Action:    memory.ActionBuy,
			Symbol:    "NVDA",
			Reasoning: "Strong earnings",
		}
		Expect(memory.DecisionContent(d)).To(Equal("Trading decision: buy NVDA\nReasoning: Strong earnings"))
	})
})

var _ = Describe("IsRetryable", func() {
	It("retries storage errors only", func() {
		se := &memory.StorageError{Op: "insert", Namespace: "agent", Err: errDummy}
		Expect(memory.IsRetryable(se)).To(BeTrue())
		Expect(memory.IsRetryable(&memory.NotFoundError{Namespace: "agent", ID: "x"})).To(BeFalse())
		Expect(memory.IsRetryable(&memory.ValidationError{Op: "add", Reason: "bad"})).To(BeFalse())
	})
})

var errDummy = errors.New("disk full")
