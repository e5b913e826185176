package rag

import "errors"

var (
	// ErrNotEmbedded is returned internally when no strategy produced a
	// vector for a text.
	ErrNotEmbedded = errors.New("could not embed")

	// ErrTooFewSections signals that a long article has no usable section
	// structure. It triggers the medium strategy.
	ErrTooFewSections = errors.New("too few sections")
)

// Strategy is the path an article took through the embedder.
type Strategy string

const (
	StrategyShort  Strategy = "short"
	StrategyMedium Strategy = "medium"
	StrategyLong   Strategy = "long"
)

// Status reports the outcome of embedding or ingesting an article.
type Status string

const (
	// StatusEmbedded means vectors were produced. Only returned by EmbedFor.
	StatusEmbedded Status = "embedded"

	// StatusIndexed means vectors were written to the index and the article
	// was marked saved.
	StatusIndexed Status = "indexed"

	// StatusNotEmbedded means no vector could be produced. The article stays
	// in the primary store but is absent from the index.
	StatusNotEmbedded Status = "not_embedded"

	// StatusIndexWriteFailed means vectors were produced but the index
	// rejected them. The article stays in the primary store.
	StatusIndexWriteFailed Status = "index_write_failed"
)

// IngestResult describes what AddDocument did for one article.
type IngestResult struct {
	ID       string   `json:"id"`
	Status   Status   `json:"status"`
	Strategy Strategy `json:"strategy,omitempty"`

	// Records is the number of vector records written.
	Records int `json:"records"`

	// Sections is the number of sections found for a long article,
	// including any that failed to embed.
	Sections int `json:"sections,omitempty"`

	ReducedConfidence bool `json:"reduced_confidence,omitempty"`

	// Err holds the embedding or index error behind a non-indexed status.
	Err error `json:"-"`
}
