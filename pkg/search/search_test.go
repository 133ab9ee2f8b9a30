package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/embeddings"
	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/memory/sqlite"
	"github.com/paperquant/recall/pkg/search"
	testutils "github.com/paperquant/recall/pkg/utils/test"
	"github.com/paperquant/recall/pkg/vector"
	"github.com/paperquant/recall/pkg/vector/linear"
)

func TestSearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Search Suite")
}

const ns = "trader-01"

var _ = Describe("Engine", func() {
	var (
		store  *sqlite.Driver
		index  *linear.Driver
		mock   *testutils.MockEmbedder
		svc    *embeddings.Service
		engine *search.Engine
		ctx    context.Context
		now    time.Time
	)

	// addMemory inserts a memory and registers its vector.
	addMemory := func(kind memory.Kind, content string, eventDate time.Time, importance float64, emb []float32) *memory.Memory {
		m := &memory.Memory{
			ID:         uuid.New().String(),
			Namespace:  ns,
			Kind:       kind,
			Content:    content,
			Embedding:  emb,
			EventDate:  eventDate,
			Importance: importance,
			CreatedAt:  now,
		}
		Expect(store.Insert(ctx, m)).To(Succeed())
		if emb != nil {
			Expect(index.Register(ctx, []vector.Document{{
				ID: m.ID, Namespace: ns, EventDate: eventDate, Embedding: emb,
			}})).To(Succeed())
		}
		return m
	}

	newEngine := func() *search.Engine {
		return search.NewEngine(search.EngineConfig{
			Store:    store,
			Index:    index,
			Embedder: svc,
			Now:      func() time.Time { return now },
		}, zap.NewNop())
	}

	BeforeEach(func() {
		var err error
		store, err = sqlite.NewDriver(sqlite.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		index = linear.NewDriver(zap.NewNop())
		mock = testutils.NewMockEmbedder()
		mock.Dimensions = 2
		svc = embeddings.NewService(embeddings.ServiceConfig{
			Factory:      func() (embeddings.Embedder, error) { return mock, nil },
			ModelVersion: "mock/v1",
		}, zap.NewNop())
		engine = newEngine()
		ctx = context.Background()
		now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("semantic ranking", func() {
		It("orders results by similarity alone", func() {
			mock.Embeddings["tech outlook"] = []float32{1, 0}

			near := addMemory(memory.KindObservation, "Tech stocks rallied", now.AddDate(0, 0, -60), 0.1, []float32{0.9, 0.1})
			far := addMemory(memory.KindObservation, "Oil prices fell", now, 0.9, []float32{0, 1})

			results, err := engine.Search(ctx, ns, "tech outlook", 5, memory.Filters{}, search.SemanticWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Memory.ID).To(Equal(near.ID))
			Expect(results[1].Memory.ID).To(Equal(far.ID))
		})
	})

	Describe("hybrid ranking", func() {
		It("ranks the newer of two equally similar memories higher", func() {
			mock.Embeddings["market news"] = []float32{1, 0}

			older := addMemory(memory.KindObservation, "Rally, sixty days ago", now.AddDate(0, 0, -60), 0.5, []float32{1, 0})
			newer := addMemory(memory.KindObservation, "Rally, yesterday", now.AddDate(0, 0, -1), 0.5, []float32{1, 0})

			results, err := engine.Search(ctx, ns, "market news", 5, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Memory.ID).To(Equal(newer.ID))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
			Expect(results[0].Recency).To(BeNumerically(">", results[1].Recency))
			_ = older
		})

		It("ranks the more important of two otherwise equal memories higher", func() {
			mock.Embeddings["market news"] = []float32{1, 0}

			minor := addMemory(memory.KindObservation, "Minor note", now.AddDate(0, 0, -5), 0.1, []float32{1, 0})
			major := addMemory(memory.KindObservation, "Major development", now.AddDate(0, 0, -5), 0.9, []float32{1, 0})

			results, err := engine.Search(ctx, ns, "market news", 5, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Memory.ID).To(Equal(major.ID))
			Expect(results[1].Memory.ID).To(Equal(minor.ID))
		})

		It("applies exponential recency decay with the configured constant", func() {
			mock.Embeddings["q"] = []float32{1, 0}
			addMemory(memory.KindObservation, "thirty days old", now.AddDate(0, 0, -30), 0.5, []float32{1, 0})

			results, err := engine.Search(ctx, ns, "q", 1, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			// exp(-30/30) = 1/e
			Expect(results[0].Recency).To(BeNumerically("~", 0.3679, 1e-3))
		})

		It("surfaces relevant context for a sector query", func() {
			mock.Embeddings["bullish tech signals"] = []float32{1, 0}

			rally := addMemory(memory.KindObservation, "Tech stocks rallied on strong earnings", now.AddDate(0, 0, -2), 0.7, []float32{0.95, 0.05})
			chips := addMemory(memory.KindObservation, "Chip demand accelerating", now.AddDate(0, 0, -4), 0.6, []float32{0.9, 0.1})
			oil := addMemory(memory.KindObservation, "Oil inventories rose", now.AddDate(0, 0, -1), 0.6, []float32{0, 1})

			results, err := engine.Search(ctx, ns, "bullish tech signals", 2, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect([]string{results[0].Memory.ID, results[1].Memory.ID}).To(ConsistOf(rally.ID, chips.ID))
			_ = oil
		})
	})

	Describe("filters", func() {
		It("prunes candidates before reranking", func() {
			mock.Embeddings["q"] = []float32{1, 0}

			addMemory(memory.KindObservation, "observation", now.AddDate(0, 0, -1), 0.5, []float32{1, 0})
			dec := addMemory(memory.KindDecision, "decision", now.AddDate(0, 0, -1), 0.8, []float32{1, 0})

			results, err := engine.Search(ctx, ns, "q", 5, memory.Filters{
				Kinds: []memory.Kind{memory.KindDecision},
			}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.ID).To(Equal(dec.ID))
		})

		It("treats an empty result set as a valid answer", func() {
			mock.Embeddings["q"] = []float32{1, 0}
			addMemory(memory.KindObservation, "observation", now, 0.5, []float32{1, 0})

			results, err := engine.Search(ctx, ns, "q", 5, memory.Filters{MinImportance: 0.99}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("fallback retrieval", func() {
		BeforeEach(func() {
			svc = embeddings.NewService(embeddings.ServiceConfig{
				Factory: func() (embeddings.Embedder, error) {
					return nil, errors.New("model load failed")
				},
				ModelVersion: "mock/v1",
			}, zap.NewNop())
			engine = newEngine()
		})

		It("degrades to keyword containment with the similarity term neutralized", func() {
			hit := addMemory(memory.KindObservation, "NVDA earnings beat expectations", now.AddDate(0, 0, -1), 0.5, nil)
			addMemory(memory.KindObservation, "Oil inventories rose", now, 0.5, nil)

			results, err := engine.Search(ctx, ns, "nvda", 5, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.ID).To(Equal(hit.ID))
			Expect(results[0].Similarity).To(Equal(1.0))
		})

		It("ranks keyword matches by recency and importance", func() {
			older := addMemory(memory.KindObservation, "NVDA guidance raised", now.AddDate(0, 0, -30), 0.5, nil)
			newer := addMemory(memory.KindObservation, "NVDA hit a new high", now.AddDate(0, 0, -1), 0.5, nil)

			results, err := engine.Search(ctx, ns, "NVDA", 5, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Memory.ID).To(Equal(newer.ID))
			Expect(results[1].Memory.ID).To(Equal(older.ID))
		})
	})

	Describe("edge cases", func() {
		It("returns an empty slice for an empty namespace", func() {
			mock.Embeddings["q"] = []float32{1, 0}
			results, err := engine.Search(ctx, ns, "q", 5, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("returns an empty slice for a non-positive topK", func() {
			results, err := engine.Search(ctx, ns, "q", 0, memory.Filters{}, search.DefaultWeights)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("rejects an empty namespace", func() {
			_, err := engine.Search(ctx, "", "q", 5, memory.Filters{}, search.DefaultWeights)
			var verr *memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})
	})
})
