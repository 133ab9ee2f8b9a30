package recall_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/embeddings"
	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/memory/sqlite"
	"github.com/paperquant/recall/pkg/recall"
	testutils "github.com/paperquant/recall/pkg/utils/test"
	"github.com/paperquant/recall/pkg/vector/linear"
)

func TestRecall(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Recall Suite")
}

const ns = "trader-01"

func newMockService(mock *testutils.MockEmbedder) *embeddings.Service {
	return embeddings.NewService(embeddings.ServiceConfig{
		Factory:      func() (embeddings.Embedder, error) { return mock, nil },
		ModelVersion: "mock/v1",
	}, zap.NewNop())
}

func newFallbackService() *embeddings.Service {
	return embeddings.NewService(embeddings.ServiceConfig{
		Factory: func() (embeddings.Embedder, error) {
			return nil, errors.New("model load failed")
		},
		ModelVersion: "mock/v1",
	}, zap.NewNop())
}

var _ = Describe("Recall", func() {
	var (
		store *sqlite.Driver
		index *linear.Driver
		mock  *testutils.MockEmbedder
		r     *recall.Recall
		ctx   context.Context
		now   time.Time
	)

	newRecall := func(svc *embeddings.Service) *recall.Recall {
		r, err := recall.New(ctx, recall.Config{
			Store:    store,
			Index:    index,
			Embedder: svc,
			Now:      func() time.Time { return now },
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	BeforeEach(func() {
		var err error
		store, err = sqlite.NewDriver(sqlite.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		index = linear.NewDriver(zap.NewNop())
		mock = testutils.NewMockEmbedder()
		ctx = context.Background()
		now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		r = newRecall(newMockService(mock))
	})

	AfterEach(func() {
		Expect(r.Close()).To(Succeed())
	})

	Describe("AddMemory", func() {
		It("stores, indexes, and retrieves a memory", func() {
			id, err := r.AddMemory(ctx, ns, memory.KindObservation, "Tech stocks rallied", now.AddDate(0, 0, -1), 0.6, map[string]any{"sector": "tech"})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			got, err := r.GetByID(ctx, ns, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("Tech stocks rallied"))
			Expect(got.Embedding).NotTo(BeEmpty())
			Expect(got.Metadata).To(HaveKeyWithValue("sector", "tech"))
		})

		It("clamps importance into [0,1]", func() {
			id, err := r.AddMemory(ctx, ns, memory.KindObservation, "overweighted", now, 3.0, nil)
			Expect(err).NotTo(HaveOccurred())

			got, err := r.GetByID(ctx, ns, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Importance).To(Equal(1.0))
		})

		It("rejects invalid writes", func() {
			var verr *memory.ValidationError

			_, err := r.AddMemory(ctx, "", memory.KindObservation, "content", now, 0.5, nil)
			Expect(err).To(BeAssignableToTypeOf(verr))

			_, err = r.AddMemory(ctx, ns, memory.KindObservation, "", now, 0.5, nil)
			Expect(err).To(BeAssignableToTypeOf(verr))

			_, err = r.AddMemory(ctx, ns, memory.Kind("sentiment"), "content", now, 0.5, nil)
			Expect(err).To(BeAssignableToTypeOf(verr))
		})

		It("is immediately visible to search in the same namespace", func() {
			first, err := r.HybridSearch(ctx, ns, "rally", 5, memory.Filters{})
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeEmpty())

			id, err := r.AddMemory(ctx, ns, memory.KindObservation, "Market rally continues", now, 0.6, nil)
			Expect(err).NotTo(HaveOccurred())

			results, err := r.HybridSearch(ctx, ns, "rally", 5, memory.Filters{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			Expect(results[0].Memory.ID).To(Equal(id))
		})
	})

	Describe("AddTradingDecision", func() {
		It("materializes a decision memory with mirrored metadata", func() {
			id, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date:      now.AddDate(0, 0, -1),
				Action:    memory.ActionBuy,
				Symbol:    "NVDA",
				Reasoning: "Strong earnings and guidance",
				Price:     475.50,
				Quantity:  10,
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := r.GetByID(ctx, ns, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Kind).To(Equal(memory.KindDecision))
			Expect(got.Content).To(Equal("Trading decision: buy NVDA\nReasoning: Strong earnings and guidance"))
			Expect(got.Importance).To(Equal(recall.DecisionImportance))
			Expect(got.Metadata).To(HaveKeyWithValue("action", "buy"))
			Expect(got.Metadata).To(HaveKeyWithValue("symbol", "NVDA"))
			Expect(got.Metadata).To(HaveKeyWithValue("price", 475.50))
			Expect(got.Metadata).To(HaveKeyWithValue("quantity", 10.0))
		})

		It("is retrievable by symbol-filtered hybrid search", func() {
			id, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -1), Action: memory.ActionBuy, Symbol: "NVDA",
				Reasoning: "Strong earnings", Price: 475.50, Quantity: 10,
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = r.AddMemory(ctx, ns, memory.KindObservation, "Oil inventories rose", now, 0.5, nil)
			Expect(err).NotTo(HaveOccurred())

			results, err := r.HybridSearch(ctx, ns, "NVDA decisions", 5, memory.Filters{
				Kinds:    []memory.Kind{memory.KindDecision},
				Metadata: map[string]any{"symbol": "NVDA"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.ID).To(Equal(id))
		})

		It("rejects invalid decisions", func() {
			var verr *memory.ValidationError

			_, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now, Action: memory.Action("short"), Symbol: "NVDA", Reasoning: "r",
			})
			Expect(err).To(BeAssignableToTypeOf(verr))

			_, err = r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now, Action: memory.ActionBuy, Symbol: "", Reasoning: "r",
			})
			Expect(err).To(BeAssignableToTypeOf(verr))

			_, err = r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now, Action: memory.ActionBuy, Symbol: "NVDA", Reasoning: "r", Quantity: -5,
			})
			Expect(err).To(BeAssignableToTypeOf(verr))
		})
	})

	Describe("RecordOutcome", func() {
		It("annotates metadata without touching content", func() {
			id, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -3), Action: memory.ActionBuy, Symbol: "NVDA",
				Reasoning: "Strong earnings", Price: 475.50, Quantity: 10,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(r.RecordOutcome(ctx, ns, id, "profitable", 365.00)).To(Succeed())

			got, err := r.GetByID(ctx, ns, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(ContainSubstring("Strong earnings"))
			Expect(got.Metadata).To(HaveKeyWithValue("outcome", "profitable"))
			Expect(got.Metadata).To(HaveKeyWithValue("profit_loss", 365.00))
			Expect(got.Metadata).To(HaveKeyWithValue("symbol", "NVDA"))
		})
	})

	Describe("RecentDecisions", func() {
		It("returns decisions within the window, newest first, optionally by symbol", func() {
			_, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -2), Action: memory.ActionBuy, Symbol: "NVDA", Reasoning: "buy the dip",
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -1), Action: memory.ActionSell, Symbol: "AAPL", Reasoning: "take profits",
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -30), Action: memory.ActionHold, Symbol: "NVDA", Reasoning: "wait",
			})
			Expect(err).NotTo(HaveOccurred())

			decisions, err := r.RecentDecisions(ctx, ns, 7, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(decisions).To(HaveLen(2))
			Expect(decisions[0].Metadata).To(HaveKeyWithValue("symbol", "AAPL"))

			nvda, err := r.RecentDecisions(ctx, ns, 7, "NVDA")
			Expect(err).NotTo(HaveOccurred())
			Expect(nvda).To(HaveLen(1))
			Expect(nvda[0].Metadata).To(HaveKeyWithValue("symbol", "NVDA"))
		})
	})

	Describe("SetImportance", func() {
		It("clamps and persists the new value", func() {
			id, err := r.AddMemory(ctx, ns, memory.KindObservation, "note", now, 0.4, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(r.SetImportance(ctx, ns, id, -2)).To(Succeed())

			got, err := r.GetByID(ctx, ns, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Importance).To(Equal(0.0))
		})
	})

	Describe("ObservePattern", func() {
		It("aggregates repeated observations", func() {
			first, err := r.ObservePattern(ctx, ns, "Tech rallies after earnings beats", true, now.AddDate(0, 0, -2))
			Expect(err).NotTo(HaveOccurred())
			second, err := r.ObservePattern(ctx, ns, "Tech rallies after earnings beats", false, now.AddDate(0, 0, -1))
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))

			patterns, err := r.Patterns(ctx, ns)
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns).To(HaveLen(1))
			Expect(patterns[0].OccurrenceCount).To(Equal(int64(2)))
			Expect(patterns[0].SuccessRate).To(BeNumerically("~", 0.5, 1e-9))
		})
	})

	Describe("ClearOldMemories", func() {
		It("removes old low-importance memories and keeps pinned decisions", func() {
			_, err := r.AddMemory(ctx, ns, memory.KindObservation, "stale chatter", now.AddDate(0, 0, -120), 0.2, nil)
			Expect(err).NotTo(HaveOccurred())
			keep, err := r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now.AddDate(0, 0, -120), Action: memory.ActionBuy, Symbol: "NVDA", Reasoning: "old but important",
			})
			Expect(err).NotTo(HaveOccurred())

			removed, err := r.ClearOldMemories(ctx, ns, 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			_, err = r.GetByID(ctx, ns, keep)
			Expect(err).NotTo(HaveOccurred())

			// Swept memories are gone from search too.
			results, err := r.HybridSearch(ctx, ns, "stale chatter", 5, memory.Filters{})
			Expect(err).NotTo(HaveOccurred())
			for _, res := range results {
				Expect(res.Memory.ID).To(Equal(keep))
			}
		})

		It("rejects a non-positive window", func() {
			_, err := r.ClearOldMemories(ctx, ns, 0)
			var verr *memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})
	})

	Describe("Statistics", func() {
		It("reflects completed writes immediately", func() {
			_, err := r.AddMemory(ctx, ns, memory.KindObservation, "obs", now, 0.4, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.AddTradingDecision(ctx, ns, memory.TradingDecision{
				Date: now, Action: memory.ActionBuy, Symbol: "NVDA", Reasoning: "r",
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ObservePattern(ctx, ns, "pattern", true, now)
			Expect(err).NotTo(HaveOccurred())

			stats, err := r.Statistics(ctx, ns)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalMemories).To(Equal(int64(2)))
			Expect(stats.TotalDecisions).To(Equal(int64(1)))
			Expect(stats.TotalPatterns).To(Equal(int64(1)))
			Expect(stats.AvgImportance).To(BeNumerically("~", 0.6, 1e-9))
		})
	})

	Describe("concurrency", func() {
		It("interleaves concurrent writers without losing writes", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := r.AddMemory(ctx, ns, memory.KindObservation,
						fmt.Sprintf("concurrent note %d", i), now, 0.5, nil)
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			stats, err := r.Statistics(ctx, ns)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalMemories).To(Equal(int64(20)))
		})
	})

	Describe("Close", func() {
		It("is idempotent", func() {
			Expect(r.Close()).To(Succeed())
			Expect(r.Close()).To(Succeed())
		})
	})
})

var _ = Describe("Recall in fallback mode", func() {
	var (
		r   *recall.Recall
		ctx context.Context
		now time.Time
	)

	BeforeEach(func() {
		store, err := sqlite.NewDriver(sqlite.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
		now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

		r, err = recall.New(ctx, recall.Config{
			Store:    store,
			Index:    linear.NewDriver(zap.NewNop()),
			Embedder: newFallbackService(),
			Now:      func() time.Time { return now },
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(r.Close()).To(Succeed())
	})

	It("stores memories without vectors and serves keyword retrieval", func() {
		id, err := r.AddMemory(ctx, ns, memory.KindObservation, "NVDA earnings beat expectations", now, 0.6, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Fallback()).To(BeTrue())

		got, err := r.GetByID(ctx, ns, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(BeNil())

		results, err := r.HybridSearch(ctx, ns, "nvda", 5, memory.Filters{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Memory.ID).To(Equal(id))
		Expect(results[0].Similarity).To(Equal(1.0))
	})

	It("keeps statistics accurate for fallback writes", func() {
		_, err := r.AddMemory(ctx, ns, memory.KindObservation, "stored without vector", now, 0.5, nil)
		Expect(err).NotTo(HaveOccurred())

		stats, err := r.Statistics(ctx, ns)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalMemories).To(Equal(int64(1)))
	})
})

var _ = Describe("index replay", func() {
	It("rebuilds a non-persistent index from stored embeddings at startup", func() {
		dir, err := os.MkdirTemp("", "recall-replay-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		dbPath := filepath.Join(dir, "memories.db")
		ctx := context.Background()
		now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		mock := testutils.NewMockEmbedder()

		store1, err := sqlite.NewDriver(sqlite.Config{DBPath: dbPath}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		r1, err := recall.New(ctx, recall.Config{
			Store:    store1,
			Index:    linear.NewDriver(zap.NewNop()),
			Embedder: newMockService(mock),
			Now:      func() time.Time { return now },
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		id, err := r1.AddMemory(ctx, ns, memory.KindObservation, "Tech stocks rallied", now, 0.6, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r1.Close()).To(Succeed())

		store2, err := sqlite.NewDriver(sqlite.Config{DBPath: dbPath}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		r2, err := recall.New(ctx, recall.Config{
			Store:    store2,
			Index:    linear.NewDriver(zap.NewNop()),
			Embedder: newMockService(testutils.NewMockEmbedder()),
			Now:      func() time.Time { return now },
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(r2.Close()).To(Succeed()) }()

		results, err := r2.SemanticSearch(ctx, ns, "Tech stocks rallied", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Memory.ID).To(Equal(id))
	})
})
