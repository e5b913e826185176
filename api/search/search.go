// Package search provides shared search types and logic for similarity search
// over indexed articles. It is used by both the REST API endpoint and the MCP
// server tool.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/quill/pkg/rag"
)

const (
	// DefaultTopK is used when a request asks for no particular count.
	DefaultTopK = 5

	// MaxTopK caps the number of results a single request can ask for.
	MaxTopK = 50
)

// ErrEmptyQuery is returned when the query text is empty.
var ErrEmptyQuery = errors.New("query is required")

// Querier answers similarity queries. *rag.Pipeline implements it.
type Querier interface {
	Query(ctx context.Context, text string, k int) (*rag.QueryOutput, error)
}

// Input represents the input arguments for a search request.
type Input struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Result represents a single article in a search response.
type Result struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	Summary     string    `json:"summary,omitempty"`

	// Distance is the best cosine distance among the article's records.
	Distance float32 `json:"distance"`

	// Sections lists the best matching sections of a long article.
	Sections []Section `json:"sections,omitempty"`

	// ReducedConfidence is set when the article's vector was averaged from
	// fewer than half of its chunks.
	ReducedConfidence bool `json:"reduced_confidence,omitempty"`
}

// Section is a matched section of a long article.
type Section struct {
	Index    int     `json:"index"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary,omitempty"`
	Distance float32 `json:"distance"`
}

// Output represents the output of a search operation.
type Output struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`

	// Fallback is set when results are recent articles rather than
	// similarity matches.
	Fallback bool `json:"fallback,omitempty"`
}

// Search runs query against q and converts the consolidated results into
// the wire format. topK is clamped into [1, MaxTopK], with 0 meaning
// DefaultTopK.
func Search(ctx context.Context, q Querier, query string, topK int, logger *slog.Logger) (*Output, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, MaxTopK)

	logger.Debug("search request",
		"query", query,
		"top_k", topK,
	)

	out, err := q.Query(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, BuildResult(r))
	}

	return &Output{
		Query:    query,
		Results:  results,
		Count:    len(results),
		Fallback: out.Fallback,
	}, nil
}

// BuildResult converts a consolidated pipeline result into a Result.
func BuildResult(r rag.Result) Result {
	sections := make([]Section, 0, len(r.Sections))
	for _, s := range r.Sections {
		sections = append(sections, Section{
			Index:    s.Index,
			Title:    s.Title,
			Summary:  s.Summary,
			Distance: s.Distance,
		})
	}

	return Result{
		ID:                r.ID,
		Title:             r.Metadata.Title,
		URL:               r.Metadata.URL,
		Author:            r.Metadata.Author,
		PublishedAt:       r.Metadata.PublishedAt,
		Summary:           r.Metadata.Summary,
		Distance:          r.Distance,
		Sections:          sections,
		ReducedConfidence: r.Metadata.ReducedConfidence,
	}
}
