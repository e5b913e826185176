package article_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/article"
)

var _ = Describe("Article", func() {
	Describe("Validate", func() {
		It("accepts an article with the required fields", func() {
			a := &article.Article{ID: "a1", Title: "Go tips", URL: "https://example.com/a1"}
			Expect(a.Validate()).To(Succeed())
		})

		It("rejects a missing id", func() {
			a := &article.Article{Title: "Go tips", URL: "https://example.com/a1"}
			Expect(a.Validate()).To(MatchError(article.ErrInvalid))
		})

		It("rejects a missing url", func() {
			a := &article.Article{ID: "a1", Title: "Go tips"}
			err := a.Validate()
			Expect(err).To(MatchError(article.ErrInvalid))
			Expect(err.Error()).To(ContainSubstring("url"))
		})
	})

	Describe("EmbeddingText", func() {
		It("joins title and body with a space", func() {
			a := &article.Article{Title: "Title", Body: "Body text"}
			Expect(a.EmbeddingText()).To(Equal("Title Body text"))
		})

		It("uses the title alone when the body is empty", func() {
			a := &article.Article{Title: "Title"}
			Expect(a.EmbeddingText()).To(Equal("Title"))
		})
	})

	Describe("tags", func() {
		It("encodes to a JSON array and decodes back", func() {
			raw, err := article.EncodeTags([]string{"go", "rag"})
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal(`["go","rag"]`))

			tags, err := article.DecodeTags(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(Equal([]string{"go", "rag"}))
		})

		It("encodes empty tags to the empty string", func() {
			raw, err := article.EncodeTags(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(BeEmpty())
		})

		It("accepts legacy comma separated values", func() {
			tags, err := article.DecodeTags("go, python ,")
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(Equal([]string{"go", "python"}))
		})

		It("reports malformed JSON", func() {
			_, err := article.DecodeTags(`["go"`)
			Expect(err).To(HaveOccurred())
		})
	})
})
