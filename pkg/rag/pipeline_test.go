package rag_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/chunker"
	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/embeddings/cache/filestore"
	"github.com/papercomputeco/quill/pkg/rag"
	"github.com/papercomputeco/quill/pkg/storage"
	"github.com/papercomputeco/quill/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/quill/pkg/utils/test"
	"github.com/papercomputeco/quill/pkg/vector"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		index    *testutils.MockVectorDriver
		embedder *testutils.MockEmbedder
		pipeline *rag.Pipeline
	)

	newPipeline := func(mutate func(*rag.Config)) *rag.Pipeline {
		cfg := rag.Config{
			Store:    store,
			Index:    index,
			Embedder: embedder,
		}
		if mutate != nil {
			mutate(&cfg)
		}
		p, err := rag.NewPipeline(cfg)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		index = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()
		pipeline = newPipeline(nil)
	})

	Describe("NewPipeline", func() {
		It("requires a store, an index and an embedder", func() {
			_, err := rag.NewPipeline(rag.Config{Index: index, Embedder: embedder})
			Expect(err).To(HaveOccurred())
			_, err = rag.NewPipeline(rag.Config{Store: store, Embedder: embedder})
			Expect(err).To(HaveOccurred())
			_, err = rag.NewPipeline(rag.Config{Store: store, Index: index})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("EmbedFor", func() {
		It("produces one document level record for a short article", func() {
			a := newArticle("short", prose(500), 1)

			docs, status := pipeline.EmbedFor(ctx, a)
			Expect(status).To(Equal(rag.StatusEmbedded))
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("short"))
			Expect(docs[0].Metadata.IsSection).To(BeFalse())
			Expect(docs[0].Metadata.Title).To(Equal("Title short"))
			Expect(embedder.Calls()).To(Equal([]string{a.EmbeddingText()}))
		})

		It("splits a long article into one record per markdown section", func() {
			var body strings.Builder
			for i := range 3 {
				body.WriteString("## Header " + string(rune('A'+i)) + "\n\n")
				body.WriteString(prose(8300))
				body.WriteString("\n\n")
			}
			Expect(body.Len()).To(BeNumerically(">", 25000))
			a := newArticle("long", body.String(), 1)

			docs, status := pipeline.EmbedFor(ctx, a)
			Expect(status).To(Equal(rag.StatusEmbedded))
			Expect(docs).To(HaveLen(3))
			for i, d := range docs {
				Expect(d.ID).To(Equal(vector.SectionID("long", i)))
				Expect(d.Metadata.IsSection).To(BeTrue())
				Expect(d.Metadata.ParentID).To(Equal("long"))
				Expect(d.Metadata.SectionIndex).To(Equal(i))
				Expect(d.Metadata.SectionTitle).To(Equal("Header " + string(rune('A'+i))))
			}
		})

		It("reports an article that cannot be embedded", func() {
			embedder.FailAll = true

			docs, status := pipeline.EmbedFor(ctx, newArticle("x", prose(300), 1))
			Expect(status).To(Equal(rag.StatusNotEmbedded))
			Expect(docs).To(BeEmpty())
		})

		It("falls back to the medium strategy when every section fails", func() {
			var body strings.Builder
			for i := range 3 {
				body.WriteString("## Part " + string(rune('A'+i)) + "\n\n")
				body.WriteString(prose(3000))
				body.WriteString("\n\n")
			}
			a := newArticle("long", body.String(), 1)

			// The three section calls come first and fail.
			var calls atomic.Int32
			fe := &funcEmbedder{fn: func(string) ([]float32, error) {
				if calls.Add(1) <= 3 {
					return nil, errProvider
				}
				return []float32{1, 0}, nil
			}}
			p := newPipeline(func(c *rag.Config) {
				c.Embedder = fe
				c.Chunker = chunker.New(chunker.WithMaxChars(4000), chunker.WithOverlap(0))
				c.LongThreshold = 5000
			})

			docs, status := p.EmbedFor(ctx, a)
			Expect(status).To(Equal(rag.StatusEmbedded))
			Expect(fe.Calls()).To(BeNumerically(">", 3))
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("long"))
			Expect(docs[0].Metadata.IsSection).To(BeFalse())
		})

		Context("long articles", func() {
			longBody := func(parts ...string) string {
				var body strings.Builder
				for _, part := range parts {
					body.WriteString("## Part " + part + "\n\n")
					body.WriteString(part + " marker. " + prose(3000))
					body.WriteString("\n\n")
				}
				return body.String()
			}

			longPipeline := func(e *funcEmbedder, concurrency int) *rag.Pipeline {
				return newPipeline(func(c *rag.Config) {
					c.Embedder = e
					c.Chunker = chunker.New(chunker.WithMaxChars(4000), chunker.WithOverlap(0))
					c.LongThreshold = 5000
					c.SectionConcurrency = concurrency
				})
			}

			It("keeps the other sections when one section fails", func() {
				fe := &funcEmbedder{fn: func(text string) ([]float32, error) {
					if strings.Contains(text, "Bravo marker") {
						return nil, errProvider
					}
					return []float32{1, 0}, nil
				}}
				p := longPipeline(fe, 3)

				docs, status := p.EmbedFor(ctx, newArticle("long", longBody("Alpha", "Bravo", "Charlie"), 1))
				Expect(status).To(Equal(rag.StatusEmbedded))
				Expect(docs).To(HaveLen(2))
				Expect(docs[0].ID).To(Equal(vector.SectionID("long", 0)))
				Expect(docs[0].Metadata.SectionIndex).To(Equal(0))
				Expect(docs[0].Metadata.SectionTitle).To(Equal("Part Alpha"))
				Expect(docs[1].ID).To(Equal(vector.SectionID("long", 2)))
				Expect(docs[1].Metadata.SectionIndex).To(Equal(2))
				Expect(docs[1].Metadata.SectionTitle).To(Equal("Part Charlie"))
			})

			It("bounds concurrent section embeddings", func() {
				var inFlight, peak atomic.Int32
				fe := &funcEmbedder{fn: func(string) ([]float32, error) {
					n := inFlight.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					inFlight.Add(-1)
					return []float32{1, 0}, nil
				}}
				p := longPipeline(fe, 2)

				docs, status := p.EmbedFor(ctx, newArticle("long",
					longBody("Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"), 1))
				Expect(status).To(Equal(rag.StatusEmbedded))
				Expect(docs).To(HaveLen(6))
				Expect(fe.Calls()).To(Equal(6))
				Expect(peak.Load()).To(BeNumerically("<=", 2))
				Expect(peak.Load()).To(BeNumerically(">=", 1))
			})
		})

		Context("medium articles", func() {
			var (
				fe     *funcEmbedder
				ch     *chunker.Chunker
				a      *article.Article
				chunks []chunker.Chunk
			)

			BeforeEach(func() {
				ch = chunker.New(chunker.WithMaxChars(100), chunker.WithOverlap(0))
				a = newArticle("medium", prose(280), 1)
				chunks = ch.Chunk(a.EmbeddingText())
				Expect(len(chunks)).To(BeNumerically(">=", 3))
			})

			run := func() ([]vector.Document, rag.Status) {
				p := newPipeline(func(c *rag.Config) {
					c.Embedder = fe
					c.Chunker = ch
					c.LongThreshold = 1000
				})
				return p.EmbedFor(ctx, a)
			}

			It("averages the chunk vectors element-wise", func() {
				vecs := map[string][]float32{}
				var want [2]float64
				for i, c := range chunks {
					v := []float32{float32(i + 1), float32(10 * (i + 1))}
					vecs[c.Text] = v
					want[0] += float64(v[0]) / float64(len(chunks))
					want[1] += float64(v[1]) / float64(len(chunks))
				}
				fe = &funcEmbedder{fn: func(text string) ([]float32, error) { return vecs[text], nil }}

				docs, status := run()
				Expect(status).To(Equal(rag.StatusEmbedded))
				Expect(docs).To(HaveLen(1))
				Expect(docs[0].Metadata.IsSection).To(BeFalse())
				Expect(docs[0].Metadata.ReducedConfidence).To(BeFalse())
				Expect(docs[0].Embedding[0]).To(BeNumerically("~", want[0], 1e-5))
				Expect(docs[0].Embedding[1]).To(BeNumerically("~", want[1], 1e-5))
				Expect(fe.Calls()).To(Equal(len(chunks)))
			})

			It("averages only the chunks that succeeded", func() {
				failed := chunks[0].Text
				fe = &funcEmbedder{fn: func(text string) ([]float32, error) {
					if text == failed {
						return nil, errProvider
					}
					if text == chunks[1].Text {
						return []float32{2, 4}, nil
					}
					return []float32{4, 8}, nil
				}}

				docs, status := run()
				Expect(status).To(Equal(rag.StatusEmbedded))

				n := float32(len(chunks) - 1)
				Expect(docs[0].Embedding[0]).To(BeNumerically("~", (2+4*(n-1))/n, 1e-5))
				Expect(docs[0].Embedding[1]).To(BeNumerically("~", (4+8*(n-1))/n, 1e-5))
			})

			It("flags reduced confidence when fewer than half of the chunks embed", func() {
				fe = &funcEmbedder{fn: func(text string) ([]float32, error) {
					if text == chunks[0].Text {
						return []float32{1, 1}, nil
					}
					return nil, errProvider
				}}

				docs, status := run()
				Expect(status).To(Equal(rag.StatusEmbedded))
				Expect(docs).To(HaveLen(1))
				Expect(docs[0].Metadata.ReducedConfidence).To(BeTrue())
				Expect(docs[0].Embedding).To(Equal([]float32{1, 1}))
			})

			It("reports failure when no chunk embeds", func() {
				fe = &funcEmbedder{fn: failing}

				docs, status := run()
				Expect(status).To(Equal(rag.StatusNotEmbedded))
				Expect(docs).To(BeEmpty())
			})
		})

		It("reuses cached embeddings instead of calling the provider again", func() {
			fs, err := filestore.New(GinkgoT().TempDir())
			Expect(err).NotTo(HaveOccurred())
			c := cache.New(fs)

			p := newPipeline(func(cfg *rag.Config) { cfg.Cache = c })
			a := newArticle("cached", prose(200), 1)

			first, _ := p.EmbedFor(ctx, a)
			second, _ := p.EmbedFor(ctx, a)
			Expect(second[0].Embedding).To(Equal(first[0].Embedding))
			Expect(embedder.Calls()).To(HaveLen(1))

			n, err := c.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})
	})

	Describe("AddDocument", func() {
		It("returns NotFoundError for an unknown article", func() {
			_, err := pipeline.AddDocument(ctx, "missing")
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})

		It("indexes the article and marks it saved", func() {
			Expect(store.Put(ctx, newArticle("a1", prose(300), 1))).To(Succeed())

			res, err := pipeline.AddDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(rag.StatusIndexed))
			Expect(res.Strategy).To(Equal(rag.StrategyShort))
			Expect(res.Records).To(Equal(1))

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a1"}))

			a, err := store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Saved).To(BeTrue())
		})

		It("keeps the article when it cannot be embedded", func() {
			embedder.FailAll = true
			Expect(store.Put(ctx, newArticle("a1", prose(300), 1))).To(Succeed())

			res, err := pipeline.AddDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(rag.StatusNotEmbedded))
			Expect(res.Err).To(HaveOccurred())

			a, err := store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Saved).To(BeFalse())

			n, err := index.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("reports an index write failure without failing", func() {
			index.AddErr = errors.New("disk full")
			Expect(store.Put(ctx, newArticle("a1", prose(300), 1))).To(Succeed())

			res, err := pipeline.AddDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(rag.StatusIndexWriteFailed))
			Expect(res.Err).To(MatchError("disk full"))

			a, err := store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Saved).To(BeFalse())
		})

		It("replaces records left from an earlier decomposition", func() {
			Expect(index.Add(ctx, []vector.Document{
				{ID: vector.SectionID("a1", 0), Embedding: []float32{1, 0, 0}, Metadata: vector.Metadata{IsSection: true, ParentID: "a1"}},
				{ID: vector.SectionID("a1", 1), Embedding: []float32{0, 1, 0}, Metadata: vector.Metadata{IsSection: true, ParentID: "a1"}},
				{ID: "other", Embedding: []float32{0, 0, 1}},
			})).To(Succeed())
			Expect(store.Put(ctx, newArticle("a1", prose(300), 1))).To(Succeed())

			_, err := pipeline.AddDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("a1", "other"))
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			for i, id := range []string{"a1", "a2", "a3"} {
				Expect(store.Put(ctx, newArticle(id, prose(100), i+1))).To(Succeed())
			}
		})

		It("returns consolidated results nearest first", func() {
			embedder.Embeddings["find me"] = []float32{1, 0, 0}
			Expect(index.Add(ctx, []vector.Document{
				{ID: "a1", Embedding: []float32{0, 1, 0}, Metadata: vector.Metadata{Title: "Title a1"}},
				{ID: vector.SectionID("a2", 0), Embedding: []float32{1, 0.1, 0}, Metadata: vector.Metadata{IsSection: true, ParentID: "a2", SectionTitle: "Intro"}},
				{ID: vector.SectionID("a2", 1), Embedding: []float32{1, 0.5, 0}, Metadata: vector.Metadata{IsSection: true, ParentID: "a2", SectionTitle: "Body"}},
				{ID: "a3", Embedding: []float32{1, 0.3, 0}, Metadata: vector.Metadata{Title: "Title a3"}},
			})).To(Succeed())

			out, err := pipeline.Query(ctx, "find me", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fallback).To(BeFalse())
			Expect(out.Count).To(Equal(2))
			Expect(out.Results[0].ID).To(Equal("a2"))
			Expect(out.Results[0].Metadata.Title).To(Equal("Title a2"))
			Expect(out.Results[0].Sections).To(HaveLen(2))
			Expect(out.Results[0].Sections[0].Title).To(Equal("Intro"))
			Expect(out.Results[1].ID).To(Equal("a3"))
			Expect(index.Queries()).To(Equal(1))
		})

		It("returns recent articles when the query cannot be embedded", func() {
			embedder.FailAll = true
			Expect(index.Add(ctx, []vector.Document{{ID: "a1", Embedding: []float32{1, 0, 0}}})).To(Succeed())

			out, err := pipeline.Query(ctx, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fallback).To(BeTrue())
			Expect(out.Results).To(HaveLen(3))
			Expect(out.Results[0].ID).To(Equal("a3"))
			for _, r := range out.Results {
				Expect(r.Fallback).To(BeTrue())
			}
			Expect(index.Queries()).To(BeZero())
		})

		It("caps fallback results at the recent limit", func() {
			p := newPipeline(func(c *rag.Config) { c.RecentLimit = 2 })

			out, err := p.Query(ctx, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fallback).To(BeTrue())
			Expect(out.Results).To(HaveLen(2))
		})

		It("returns recent articles when the index is empty", func() {
			out, err := pipeline.Query(ctx, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fallback).To(BeTrue())
			Expect(out.Count).To(Equal(3))
		})

		It("returns recent articles when the index fails", func() {
			index.QueryErr = errors.New("index down")

			out, err := pipeline.Query(ctx, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fallback).To(BeTrue())
		})
	})

	Describe("Reconcile", func() {
		It("deletes records whose article is gone", func() {
			Expect(store.Put(ctx, newArticle("kept", prose(100), 1))).To(Succeed())
			Expect(index.Add(ctx, []vector.Document{
				{ID: "kept", Embedding: []float32{1, 0}},
				{ID: "gone", Embedding: []float32{0, 1}},
				{ID: vector.SectionID("kept", 0), Embedding: []float32{1, 1}, Metadata: vector.Metadata{IsSection: true, ParentID: "kept"}},
				{ID: vector.SectionID("gone", 0), Embedding: []float32{1, 2}, Metadata: vector.Metadata{IsSection: true, ParentID: "gone"}},
			})).To(Succeed())

			n, err := pipeline.Reconcile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("kept", vector.SectionID("kept", 0)))
		})

		It("judges section-like ids by their section metadata", func() {
			Expect(store.Put(ctx, newArticle("a", prose(100), 1))).To(Succeed())
			Expect(index.Add(ctx, []vector.Document{
				{ID: "a", Embedding: []float32{1, 0}},
				// A deleted article whose own id looks like a section of "a".
				{ID: "a_section_0", Embedding: []float32{0, 1}},
				{ID: "a_section_1", Embedding: []float32{1, 1}, Metadata: vector.Metadata{IsSection: true, ParentID: "a", SectionIndex: 1}},
			})).To(Succeed())

			n, err := pipeline.Reconcile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("a", "a_section_1"))
		})

		It("does nothing on an empty index", func() {
			n, err := pipeline.Reconcile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("surfaces index listing errors", func() {
			index.ListErr = errors.New("boom")
			_, err := pipeline.Reconcile(ctx)
			Expect(err).To(MatchError(ContainSubstring("boom")))
		})
	})

	Describe("DeleteDocument", func() {
		It("removes the article's records and clears the saved flag", func() {
			Expect(store.Put(ctx, newArticle("a1", prose(100), 1))).To(Succeed())
			Expect(store.MarkSaved(ctx, "a1")).To(Succeed())
			Expect(index.Add(ctx, []vector.Document{
				{ID: vector.SectionID("a1", 0), Embedding: []float32{1, 0}, Metadata: vector.Metadata{IsSection: true, ParentID: "a1"}},
				{ID: vector.SectionID("a1", 1), Embedding: []float32{0, 1}, Metadata: vector.Metadata{IsSection: true, ParentID: "a1", SectionIndex: 1}},
				{ID: "a2", Embedding: []float32{1, 1}},
			})).To(Succeed())

			n, err := pipeline.DeleteDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a2"}))

			a, err := store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Saved).To(BeFalse())
		})

		It("leaves articles whose id only looks like a section of it", func() {
			Expect(store.Put(ctx, newArticle("a", prose(100), 1))).To(Succeed())
			Expect(store.Put(ctx, newArticle("a_section_0", prose(120), 2))).To(Succeed())
			_, err := pipeline.AddDocument(ctx, "a_section_0")
			Expect(err).NotTo(HaveOccurred())
			_, err = pipeline.AddDocument(ctx, "a")
			Expect(err).NotTo(HaveOccurred())

			ids, err := index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("a", "a_section_0"))

			n, err := pipeline.DeleteDocument(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			ids, err = index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("a_section_0"))
		})

		It("tolerates articles missing from both stores", func() {
			n, err := pipeline.DeleteDocument(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Stats", func() {
		It("counts vectors, articles and cache entries", func() {
			Expect(store.Put(ctx, newArticle("a1", prose(100), 1))).To(Succeed())
			_, err := pipeline.AddDocument(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())

			stats, err := pipeline.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Vectors).To(Equal(1))
			Expect(stats.Articles).To(Equal(1))
			Expect(stats.CacheEntries).To(Equal(-1))
			Expect(stats.Model).To(Equal("mock-embed"))
		})
	})
})
