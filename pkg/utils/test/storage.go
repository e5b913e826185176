package testutils

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:staticcheck
	. "github.com/onsi/gomega"    //nolint:staticcheck

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/storage"
)

// NewArticle returns a valid article published at the given day of
// January 2025.
func NewArticle(id string, day int) *article.Article {
	return &article.Article{
		ID:          id,
		Title:       "Title " + id,
		Body:        "Body of " + id,
		Author:      "author",
		URL:         "https://example.com/" + id,
		PublishedAt: time.Date(2025, time.January, day, 12, 0, 0, 0, time.UTC),
		Summary:     "Summary of " + id,
		Tags:        []string{"go", "rag"},
		Claps:       day * 10,
		Responses:   day,
	}
}

// StorageDriverSpecs registers the behaviour every storage.Driver shares.
// driver is called inside each spec and must return a fresh, empty store.
func StorageDriverSpecs(driver func() storage.Driver) {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Put and Get", func() {
		It("round trips every field", func() {
			d := driver()
			a := NewArticle("a1", 3)
			Expect(d.Put(ctx, a)).To(Succeed())

			got, err := d.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(a.ID))
			Expect(got.Title).To(Equal(a.Title))
			Expect(got.Body).To(Equal(a.Body))
			Expect(got.Author).To(Equal(a.Author))
			Expect(got.URL).To(Equal(a.URL))
			Expect(got.PublishedAt.Equal(a.PublishedAt)).To(BeTrue())
			Expect(got.Summary).To(Equal(a.Summary))
			Expect(got.Tags).To(Equal([]string{"go", "rag"}))
			Expect(got.Saved).To(BeFalse())
			Expect(got.Claps).To(Equal(30))
			Expect(got.Responses).To(Equal(3))
			Expect(got.CreatedAt.IsZero()).To(BeFalse())
		})

		It("stores an article without tags", func() {
			d := driver()
			a := NewArticle("a1", 1)
			a.Tags = nil
			Expect(d.Put(ctx, a)).To(Succeed())

			got, err := d.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tags).To(BeEmpty())
		})

		It("replaces an existing article", func() {
			d := driver()
			Expect(d.Put(ctx, NewArticle("a1", 1))).To(Succeed())

			updated := NewArticle("a1", 1)
			updated.Title = "New title"
			Expect(d.Put(ctx, updated)).To(Succeed())

			got, err := d.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("New title"))

			n, err := d.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects invalid articles", func() {
			d := driver()
			err := d.Put(ctx, &article.Article{ID: "x"})
			Expect(errors.Is(err, article.ErrInvalid)).To(BeTrue())
		})

		It("returns NotFoundError for a missing id", func() {
			d := driver()
			_, err := d.Get(ctx, "missing")
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.ID).To(Equal("missing"))
		})
	})

	Describe("Existing", func() {
		It("reports only stored ids", func() {
			d := driver()
			Expect(d.Put(ctx, NewArticle("a1", 1))).To(Succeed())
			Expect(d.Put(ctx, NewArticle("a2", 2))).To(Succeed())

			got, err := d.Existing(ctx, []string{"a1", "a2", "a3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(map[string]bool{"a1": true, "a2": true}))
		})

		It("handles an empty id list", func() {
			d := driver()
			got, err := d.Existing(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})

	Describe("Recent and List", func() {
		It("orders by publish date, newest first", func() {
			d := driver()
			Expect(d.Put(ctx, NewArticle("old", 1))).To(Succeed())
			Expect(d.Put(ctx, NewArticle("new", 20))).To(Succeed())
			Expect(d.Put(ctx, NewArticle("mid", 10))).To(Succeed())

			recent, err := d.Recent(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(2))
			Expect(recent[0].ID).To(Equal("new"))
			Expect(recent[1].ID).To(Equal("mid"))

			all, err := d.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[2].ID).To(Equal("old"))
		})

		It("returns nothing for an empty store", func() {
			d := driver()
			recent, err := d.Recent(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(BeEmpty())
		})
	})

	Describe("MarkSaved and UnmarkSaved", func() {
		It("toggles the saved flag", func() {
			d := driver()
			Expect(d.Put(ctx, NewArticle("a1", 1))).To(Succeed())

			Expect(d.MarkSaved(ctx, "a1")).To(Succeed())
			got, err := d.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Saved).To(BeTrue())

			Expect(d.UnmarkSaved(ctx, "a1")).To(Succeed())
			got, err = d.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Saved).To(BeFalse())
		})

		It("returns NotFoundError for a missing id", func() {
			d := driver()
			var nf storage.NotFoundError
			Expect(errors.As(d.MarkSaved(ctx, "missing"), &nf)).To(BeTrue())
			Expect(errors.As(d.UnmarkSaved(ctx, "missing"), &nf)).To(BeTrue())
		})
	})

	Describe("Delete and Count", func() {
		It("removes articles", func() {
			d := driver()
			Expect(d.Put(ctx, NewArticle("a1", 1))).To(Succeed())
			Expect(d.Put(ctx, NewArticle("a2", 2))).To(Succeed())

			n, err := d.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			Expect(d.Delete(ctx, "a1")).To(Succeed())
			Expect(d.Delete(ctx, "missing")).To(Succeed())

			n, err = d.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			_, err = d.Get(ctx, "a1")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})
	})
}
