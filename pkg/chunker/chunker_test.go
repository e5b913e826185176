package chunker_test

import (
	"fmt"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/chunker"
)

// lastRunes returns the trailing n characters of s.
func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func paragraphs(n, sentencesPer int) string {
	var paras []string
	for p := range n {
		var sentences []string
		for s := range sentencesPer {
			sentences = append(sentences, fmt.Sprintf("Paragraph %d sentence %d talks about vectors.", p, s))
		}
		paras = append(paras, strings.Join(sentences, " "))
	}
	return strings.Join(paras, "\n\n")
}

var corpus = map[string]string{
	"plain": paragraphs(6, 5),
	"token": strings.Repeat("x", 777),
	"mixed": paragraphs(2, 3) + "\n\n" + strings.Repeat("y", 400) + "\n\n" + paragraphs(1, 2),
	"cjk":   strings.Repeat("向量資料庫可以儲存嵌入。", 40),
	"markdown": "# Title\n\nIntro paragraph about retrieval.\n\n## Setup\n\n- install the tool\n- configure the index\n\n## Usage\n\n" +
		paragraphs(3, 4) + "\n\n1. first step\n2. second step\n",
	"code": "Some prose before the code.\n\n```go\n" + strings.Repeat("fmt.Println(\"hello world\")\n", 30) +
		"```\n\nProse after the block with `inline.Code()` in it. " + paragraphs(2, 3),
}

var _ = Describe("Chunker", func() {
	Describe("trivial inputs", func() {
		It("returns no chunks for empty input", func() {
			Expect(chunker.Split("", 100, 10)).To(BeEmpty())
		})

		It("returns the text whole when it fits", func() {
			chunks := chunker.Split("short text", 100, 10)
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].Text).To(Equal("short text"))
			Expect(chunks[0].Start).To(Equal(0))
			Expect(chunks[0].End).To(Equal(len("short text")))
		})
	})

	Describe("size bound", func() {
		for name, text := range corpus {
			for _, maxChars := range []int{40, 100, 333} {
				for _, overlap := range []int{0, 10, 25} {
					It(fmt.Sprintf("holds for %s with max %d overlap %d", name, maxChars, overlap), func() {
						chunks := chunker.Split(text, maxChars, overlap)
						Expect(chunks).NotTo(BeEmpty())
						for _, c := range chunks {
							Expect(c.Size()).To(BeNumerically("<=", maxChars))
							Expect(utf8.ValidString(c.Text)).To(BeTrue())
						}
					})
				}
			}
		}
	})

	Describe("overlap", func() {
		for name, text := range corpus {
			It(fmt.Sprintf("prefixes each chunk with the tail of its predecessor for %s", name), func() {
				const overlap = 15
				chunks := chunker.Split(text, 120, overlap)
				Expect(len(chunks)).To(BeNumerically(">", 1))

				pre := chunks[0].Text
				for i := 1; i < len(chunks); i++ {
					prefix := lastRunes(pre, overlap)
					Expect(strings.HasPrefix(chunks[i].Text, prefix)).To(BeTrue(),
						"chunk %d does not start with %q", i, prefix)
					pre = strings.TrimPrefix(chunks[i].Text, prefix)
				}
			})
		}

		It("adds nothing when overlap is zero", func() {
			chunks := chunker.Split(strings.Repeat("x", 250), 100, 0)
			Expect(chunks).To(HaveLen(3))
			Expect(chunks[0].Size()).To(Equal(100))
			Expect(chunks[1].Size()).To(Equal(100))
			Expect(chunks[2].Size()).To(Equal(50))
		})

		It("clamps an overlap that is not smaller than the bound", func() {
			c := chunker.New(chunker.WithMaxChars(100), chunker.WithOverlap(100))
			Expect(c.Overlap()).To(Equal(25))
		})

		It("never raises the bound above the ceiling", func() {
			c := chunker.New(chunker.WithMaxChars(chunker.ChunkCeiling * 2))
			Expect(c.MaxChars()).To(Equal(chunker.ChunkCeiling))

			for _, ch := range c.Chunk(strings.Repeat("word ", 3000)) {
				Expect(ch.Size()).To(BeNumerically("<=", chunker.ChunkCeiling))
			}
		})
	})

	Describe("plain strategy", func() {
		It("packs whole paragraphs together while they fit", func() {
			p := strings.Repeat("a", 30)
			text := p + "\n\n" + p + "\n\n" + p
			chunks := chunker.Split(text, 70, 0)
			Expect(chunks).To(HaveLen(2))
			Expect(chunks[0].Text).To(Equal(p + "\n\n" + p))
			Expect(chunks[1].Text).To(Equal(p))
		})

		It("splits an oversized paragraph on sentence boundaries", func() {
			text := "The first sentence is here. The second sentence follows it. The third one ends the paragraph."
			chunks := chunker.Split(text, 60, 0)
			Expect(len(chunks)).To(BeNumerically(">=", 2))
			for _, c := range chunks {
				Expect(c.Text).To(HaveSuffix("."))
			}
		})

		It("records offsets that point back into the source", func() {
			text := corpus["plain"]
			for _, c := range chunker.Split(text, 200, 0) {
				Expect(text[c.Start:c.End]).To(Equal(c.Text))
			}
		})
	})

	Describe("markdown strategy", func() {
		It("starts chunks at header or list anchors", func() {
			text := "## Alpha\n\n" + strings.Repeat("alpha words ", 6) +
				"\n\n## Beta\n\n" + strings.Repeat("beta words ", 6) +
				"\n\n- item one\n- item two\n"
			Expect(chunker.Detect(text)).To(Equal(chunker.StrategyMarkdown))

			chunks := chunker.Split(text, 90, 0)
			Expect(len(chunks)).To(BeNumerically(">=", 2))
			Expect(chunks[0].Text).To(HavePrefix("## Alpha"))
			Expect(chunks[1].Text).To(HavePrefix("## Beta"))
		})
	})

	Describe("code strategy", func() {
		It("keeps a fitting fenced block in its own chunk", func() {
			block := "```go\nfmt.Println(\"hi\")\n```"
			text := strings.Repeat("Prose sentence here. ", 5) + "\n\n" + block + "\n\n" + strings.Repeat("More prose. ", 5)
			chunks := chunker.Split(text, 80, 0)
			Expect(chunks).To(ContainElement(HaveField("Text", block)))
		})

		It("repeats fence lines on every piece of an oversized block", func() {
			block := "```python\n" + strings.Repeat("print('hello world')\n", 20) + "```"
			text := "Intro.\n\n" + block
			chunks := chunker.Split(text, 100, 0)

			var fenced int
			for _, c := range chunks {
				if strings.HasPrefix(c.Text, "```python\n") {
					fenced++
					Expect(c.Text).To(HaveSuffix("\n```"))
				}
			}
			Expect(fenced).To(BeNumerically(">", 1))
		})

		It("never breaks a sentence inside inline code", func() {
			text := "Call `os.Exit(1). Then` carefully. " + strings.Repeat("Filler sentence text. ", 10)
			for _, c := range chunker.Split(text, 60, 0) {
				Expect(c.Text).NotTo(HavePrefix("Then`"))
			}
		})
	})

	Describe("Detect", func() {
		It("prefers code when fences are present", func() {
			Expect(chunker.Detect("# H\n- a\n```\nx\n```")).To(Equal(chunker.StrategyCode))
		})

		It("needs both headers and lists for markdown", func() {
			Expect(chunker.Detect("# Header only\n\ntext")).To(Equal(chunker.StrategyPlain))
			Expect(chunker.Detect("# Header\n\n- item")).To(Equal(chunker.StrategyMarkdown))
		})
	})

	Describe("MaxCharsFor", func() {
		It("takes the smaller of the provider limit and the ceiling", func() {
			Expect(chunker.MaxCharsFor(8000)).To(Equal(chunker.ChunkCeiling))
			Expect(chunker.MaxCharsFor(1000)).To(Equal(1000))
			Expect(chunker.MaxCharsFor(0)).To(Equal(chunker.ChunkCeiling))
		})
	})
})
