// Package chunker splits documents into ordered, size-bounded chunks for
// embedding while keeping paragraphs, sentences, markdown sections and code
// blocks together wherever the size bound allows.
package chunker

import (
	"unicode/utf8"
)

const (
	// ChunkCeiling caps chunk size regardless of provider limits. Some
	// providers time out on inputs that fit their token limit but are large
	// in characters.
	ChunkCeiling = 6000

	// DefaultProviderMaxChars is the character limit assumed for an embedding
	// provider that does not state one.
	DefaultProviderMaxChars = 8000

	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// Chunk is a piece of a document produced for embedding.
type Chunk struct {
	// Text is the chunk content, including any overlap carried over from the
	// previous chunk.
	Text string

	// Start and End are byte offsets into the source text of the content
	// this chunk covers, excluding overlap.
	Start int
	End   int
}

// Size returns the chunk length in characters.
func (c Chunk) Size() int {
	return utf8.RuneCountInString(c.Text)
}

// Chunker splits text using the strategy that matches its structure.
type Chunker struct {
	maxChars int
	overlap  int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChars sets the upper bound on chunk size in characters. Bounds above
// ChunkCeiling are lowered to it.
func WithMaxChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = min(n, ChunkCeiling)
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// MaxCharsFor returns the effective chunk bound for a provider limit: the
// smaller of the provider's limit and ChunkCeiling.
func MaxCharsFor(providerMaxChars int) int {
	if providerMaxChars <= 0 {
		providerMaxChars = DefaultProviderMaxChars
	}
	return min(providerMaxChars, ChunkCeiling)
}

// New creates a Chunker. Without options it bounds chunks to
// MaxCharsFor(DefaultProviderMaxChars) with DefaultOverlap.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChars: MaxCharsFor(DefaultProviderMaxChars),
		overlap:  DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.overlap >= c.maxChars {
		c.overlap = c.maxChars / 4
	}

	return c
}

// MaxChars reports the configured size bound.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// Overlap reports the configured overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split is a convenience wrapper around New(WithMaxChars, WithOverlap).Chunk.
func Split(text string, maxChars, overlap int) []Chunk {
	return New(WithMaxChars(maxChars), WithOverlap(overlap)).Chunk(text)
}

// Chunk splits text into an ordered sequence of chunks no longer than the
// configured bound. Empty input yields no chunks; input within the bound is
// returned whole.
func (c *Chunker) Chunk(text string) []Chunk {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.maxChars {
		return []Chunk{{Text: text, Start: 0, End: len(text)}}
	}

	// Overlap is prepended after boundaries are fixed, so pieces are packed
	// against what is left of the bound.
	budget := c.maxChars - c.overlap

	var pieces []piece
	switch Detect(text) {
	case StrategyCode:
		pieces = codePieces(text, budget)
	case StrategyMarkdown:
		pieces = markdownPieces(text, budget)
	default:
		pieces = spansToPieces(text, plainSpans(text, span{0, len(text)}, budget, nil))
	}

	return withOverlap(pieces, c.overlap)
}

// withOverlap prefixes every piece after the first with the trailing overlap
// characters of its predecessor's own text.
func withOverlap(pieces []piece, overlap int) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		t := p.text
		if i > 0 && overlap > 0 {
			t = tailRunes(pieces[i-1].text, overlap) + t
		}
		chunks = append(chunks, Chunk{Text: t, Start: p.start, End: p.end})
	}
	return chunks
}

// tailRunes returns the last n characters of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := len(s); i > 0; {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		count++
		if count == n {
			return s[i:]
		}
	}
	return s
}
