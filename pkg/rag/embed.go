package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/utils"
	"github.com/papercomputeco/quill/pkg/vector"
)

// sectionSummaryLen is the length of the excerpt stored as a section's
// summary.
const sectionSummaryLen = 200

// embedding is the result of running an article through the embedder.
type embedding struct {
	docs     []vector.Document
	strategy Strategy
	sections int
	reduced  bool
	err      error
}

// EmbedFor produces the vector records for an article without writing them
// anywhere. Short and medium articles yield one record, long articles one
// record per embedded section. An article that cannot be embedded yields no
// records and StatusNotEmbedded.
func (p *Pipeline) EmbedFor(ctx context.Context, a *article.Article) ([]vector.Document, Status) {
	e := p.embedArticle(ctx, a)
	if len(e.docs) == 0 {
		return nil, StatusNotEmbedded
	}
	return e.docs, StatusEmbedded
}

func (p *Pipeline) embedArticle(ctx context.Context, a *article.Article) *embedding {
	text := a.EmbeddingText()
	n := utf8.RuneCountInString(text)
	meta := articleMetadata(a)

	switch {
	case n <= p.chunker.MaxChars():
		vec, err := p.embedText(ctx, text, false)
		if err != nil {
			return &embedding{strategy: StrategyShort, err: err}
		}
		return &embedding{
			strategy: StrategyShort,
			docs:     []vector.Document{{ID: a.ID, Embedding: vec, Metadata: meta}},
		}

	case n <= p.longThreshold:
		return p.embedMedium(ctx, a.ID, text, meta)

	default:
		e := p.embedLong(ctx, a, meta)
		if len(e.docs) > 0 {
			return e
		}
		p.logger.Warn("long article fell back to medium strategy",
			"article_id", a.ID,
			"sections", e.sections,
			"error", e.err,
		)
		fallback := p.embedMedium(ctx, a.ID, text, meta)
		fallback.sections = e.sections
		return fallback
	}
}

func (p *Pipeline) embedMedium(ctx context.Context, id, text string, meta vector.Metadata) *embedding {
	vec, reduced, err := p.embedAveraged(ctx, id, text)
	if err != nil {
		return &embedding{strategy: StrategyMedium, err: err}
	}
	meta.ReducedConfidence = reduced
	return &embedding{
		strategy: StrategyMedium,
		reduced:  reduced,
		docs:     []vector.Document{{ID: id, Embedding: vec, Metadata: meta}},
	}
}

// embedLong embeds each extracted section as its own record. Sections are
// embedded concurrently; a failed section is logged and skipped.
func (p *Pipeline) embedLong(ctx context.Context, a *article.Article, meta vector.Metadata) *embedding {
	sections, err := extractSections(a.Body, p.sectionOpts())
	if err != nil {
		return &embedding{strategy: StrategyLong, err: err}
	}

	docs := make([]*vector.Document, len(sections))
	var (
		mu      sync.Mutex
		reduced bool
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(p.sectionConcurrency)
	for i, s := range sections {
		g.Go(func() error {
			id := vector.SectionID(a.ID, i)
			text := a.Title + " " + s.Text

			var (
				vec []float32
				red bool
				err error
			)
			if utf8.RuneCountInString(text) <= p.chunker.MaxChars() {
				vec, err = p.embedText(ctx, text, false)
			} else {
				vec, red, err = p.embedAveraged(ctx, id, text)
			}
			if err != nil {
				p.logger.Warn("failed to embed section",
					"article_id", a.ID,
					"section_index", i,
					"error", err,
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}

			m := meta
			m.IsSection = true
			m.ParentID = a.ID
			m.SectionIndex = i
			m.SectionTitle = s.Title
			m.Summary = utils.Truncate(s.Body(), sectionSummaryLen)
			m.ReducedConfidence = red

			mu.Lock()
			docs[i] = &vector.Document{ID: id, Embedding: vec, Metadata: m}
			reduced = reduced || red
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e := &embedding{strategy: StrategyLong, sections: len(sections), reduced: reduced}
	for _, d := range docs {
		if d != nil {
			e.docs = append(e.docs, *d)
		}
	}
	if len(e.docs) == 0 {
		e.err = fmt.Errorf("%w: no section of %d embedded: %w", ErrNotEmbedded, len(sections), errors.Join(errs...))
	}
	return e
}

// embedAveraged chunks text, embeds every chunk sequentially and returns the
// element-wise mean of the chunk vectors that succeeded. reduced is set when
// fewer than half of the chunks contributed.
func (p *Pipeline) embedAveraged(ctx context.Context, id, text string) ([]float32, bool, error) {
	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, false, fmt.Errorf("%w: empty text", ErrNotEmbedded)
	}

	vecs := make([][]float32, 0, len(chunks))
	var lastErr error
	for i, c := range chunks {
		vec, err := p.embedText(ctx, c.Text, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			p.logger.Debug("failed to embed chunk",
				"id", id,
				"chunk", i,
				"error", err,
			)
			lastErr = err
			continue
		}
		if len(vecs) > 0 && len(vec) != len(vecs[0]) {
			lastErr = fmt.Errorf("%w: chunk %d", vector.ErrDimensionMismatch, i)
			continue
		}
		vecs = append(vecs, vec)
	}

	if len(vecs) == 0 {
		return nil, false, fmt.Errorf("%w: all %d chunks failed: %w", ErrNotEmbedded, len(chunks), lastErr)
	}

	mean, err := vector.Mean(vecs)
	if err != nil {
		return nil, false, err
	}

	reduced := len(vecs)*2 < len(chunks)
	if reduced {
		p.logger.Warn("embedding averaged from fewer than half of the chunks",
			"id", id,
			"embedded", len(vecs),
			"chunks", len(chunks),
		)
	}
	return mean, reduced, nil
}

// embedVector produces a single vector for free text using the short or
// medium strategy.
func (p *Pipeline) embedVector(ctx context.Context, text string) ([]float32, error) {
	if utf8.RuneCountInString(text) <= p.chunker.MaxChars() {
		return p.embedText(ctx, text, false)
	}
	vec, _, err := p.embedAveraged(ctx, "query", text)
	return vec, err
}

// embedText returns the cached vector for text or asks the embedder for it.
// paced calls wait on the pipeline's rate limiter before reaching the
// provider.
func (p *Pipeline) embedText(ctx context.Context, text string, paced bool) ([]float32, error) {
	model := p.embedder.Model()
	if p.cache != nil {
		if vec, ok := p.cache.Get(ctx, text, model); ok {
			return vec, nil
		}
	}

	if paced {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrNotEmbedded)
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, text, model, vec); err != nil {
			p.logger.Warn("failed to cache embedding",
				"model", model,
				"error", err,
			)
		}
	}
	return vec, nil
}

func articleMetadata(a *article.Article) vector.Metadata {
	return vector.Metadata{
		Title:       a.Title,
		Author:      a.Author,
		URL:         a.URL,
		PublishedAt: a.PublishedAt,
		Summary:     a.Summary,
	}
}

func logAttrs(r *IngestResult) []any {
	return []any{
		"article_id", r.ID,
		"status", r.Status,
		"strategy", r.Strategy,
		"records", r.Records,
	}
}
