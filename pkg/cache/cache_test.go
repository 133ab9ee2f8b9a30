package cache_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperquant/recall/pkg/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

var _ = Describe("EmbeddingCache", func() {
	It("keys by model version and content", func() {
		c, err := cache.NewEmbeddingCache(8)
		Expect(err).NotTo(HaveOccurred())

		c.Put("mock/v1", "tech stocks", []float32{1, 2})

		got, ok := c.Get("mock/v1", "tech stocks")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal([]float32{1, 2}))

		_, ok = c.Get("mock/v2", "tech stocks")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("mock/v1", "other text")
		Expect(ok).To(BeFalse())
	})

	It("evicts least recently used entries at capacity", func() {
		c, err := cache.NewEmbeddingCache(2)
		Expect(err).NotTo(HaveOccurred())

		c.Put("m", "a", []float32{1})
		c.Put("m", "b", []float32{2})

		// Touch "a" so "b" is the eviction candidate.
		_, ok := c.Get("m", "a")
		Expect(ok).To(BeTrue())

		c.Put("m", "c", []float32{3})

		_, ok = c.Get("m", "b")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("m", "a")
		Expect(ok).To(BeTrue())
		Expect(c.Len()).To(Equal(2))
	})
})

var _ = Describe("QueryCache", func() {
	It("round-trips per namespace and fingerprint", func() {
		c := cache.NewQueryCache[[]string](8, time.Minute)

		c.Put("trader-01", "q1", []string{"m1", "m2"})

		got, ok := c.Get("trader-01", "q1")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal([]string{"m1", "m2"}))

		_, ok = c.Get("trader-02", "q1")
		Expect(ok).To(BeFalse())
	})

	It("invalidates only the written namespace", func() {
		c := cache.NewQueryCache[[]string](8, time.Minute)

		c.Put("trader-01", "q1", []string{"m1"})
		c.Put("trader-01", "q2", []string{"m2"})
		c.Put("trader-02", "q1", []string{"m3"})

		c.Invalidate("trader-01")

		_, ok := c.Get("trader-01", "q1")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("trader-01", "q2")
		Expect(ok).To(BeFalse())

		got, ok := c.Get("trader-02", "q1")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal([]string{"m3"}))
	})

	It("expires entries after the TTL", func() {
		c := cache.NewQueryCache[[]string](8, 20*time.Millisecond)

		c.Put("trader-01", "q1", []string{"m1"})

		_, ok := c.Get("trader-01", "q1")
		Expect(ok).To(BeTrue())

		Eventually(func() bool {
			_, ok := c.Get("trader-01", "q1")
			return ok
		}, time.Second, 10*time.Millisecond).Should(BeFalse())
	})
})
