package cache_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/embeddings/cache/filestore"
	"github.com/papercomputeco/quill/pkg/embeddings/cache/sqlitestore"
)

// storeSpecs runs the Store contract against a backend built by newStore.
func storeSpecs(newStore func(dir string) (cache.Store, error)) {
	var (
		ctx   context.Context
		store cache.Store
		entry *cache.Entry
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = newStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		entry = &cache.Entry{
			Embedding:  []float32{0.25, -1, 3.5},
			CreatedAt:  time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
			TextLength: 42,
			Model:      "embeddinggemma",
		}
	})

	It("round-trips an entry", func() {
		Expect(store.Save(ctx, "k1", entry)).To(Succeed())

		got, err := store.Load(ctx, "k1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(Equal(entry.Embedding))
		Expect(got.CreatedAt).To(BeTemporally("==", entry.CreatedAt))
		Expect(got.TextLength).To(Equal(42))
		Expect(got.Model).To(Equal("embeddinggemma"))
	})

	It("reports missing keys", func() {
		_, err := store.Load(ctx, "missing")
		Expect(err).To(MatchError(cache.ErrNotFound))
	})

	It("replaces an existing entry", func() {
		Expect(store.Save(ctx, "k1", entry)).To(Succeed())
		entry.Embedding = []float32{9}
		Expect(store.Save(ctx, "k1", entry)).To(Succeed())

		got, err := store.Load(ctx, "k1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(Equal([]float32{9}))

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("removes entries and ignores missing keys", func() {
		Expect(store.Save(ctx, "k1", entry)).To(Succeed())
		Expect(store.Remove(ctx, "k1")).To(Succeed())
		Expect(store.Remove(ctx, "k1")).To(Succeed())

		_, err := store.Load(ctx, "k1")
		Expect(err).To(MatchError(cache.ErrNotFound))
	})

	It("walks every entry", func() {
		Expect(store.Save(ctx, "aa11", entry)).To(Succeed())
		Expect(store.Save(ctx, "bb22", entry)).To(Succeed())

		var keys []string
		err := store.Walk(ctx, func(key string, e *cache.Entry) error {
			Expect(e).NotTo(BeNil())
			keys = append(keys, key)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(ConsistOf("aa11", "bb22"))

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
	})
}

var _ = Describe("filestore", func() {
	storeSpecs(func(dir string) (cache.Store, error) {
		return filestore.New(dir)
	})
})

var _ = Describe("sqlitestore", func() {
	storeSpecs(func(dir string) (cache.Store, error) {
		return sqlitestore.New(filepath.Join(dir, "cache.db"))
	})
})
