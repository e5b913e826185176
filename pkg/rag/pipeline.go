// Package rag turns stored articles into vector index records and answers
// similarity queries over them. It owns the embedding cache and the vector
// index; the primary record store is only read, apart from the saved flag.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/quill/pkg/chunker"
	"github.com/papercomputeco/quill/pkg/embeddings"
	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/storage"
	"github.com/papercomputeco/quill/pkg/vector"
)

// reconcileBatch is the number of ids checked against the primary store per
// call.
const reconcileBatch = 500

// Pipeline embeds articles into the vector index and queries it. It is safe
// for concurrent use.
type Pipeline struct {
	store    storage.Driver
	index    vector.Driver
	embedder embeddings.Embedder
	cache    *cache.Cache
	chunker  *chunker.Chunker
	limiter  *rate.Limiter
	logger   *slog.Logger

	longThreshold      int
	minSections        int
	maxSections        int
	sectionConcurrency int
	recentLimit        int
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	limit := rate.Inf
	if cfg.ChunkPause > 0 {
		limit = rate.Every(cfg.ChunkPause)
	}

	return &Pipeline{
		store:              cfg.Store,
		index:              cfg.Index,
		embedder:           cfg.Embedder,
		cache:              cfg.Cache,
		chunker:            cfg.Chunker,
		limiter:            rate.NewLimiter(limit, 1),
		logger:             log,
		longThreshold:      cfg.LongThreshold,
		minSections:        cfg.MinSections,
		maxSections:        cfg.MaxSections,
		sectionConcurrency: cfg.SectionConcurrency,
		recentLimit:        cfg.RecentLimit,
	}, nil
}

// AddDocument embeds the stored article id and writes its records to the
// vector index, replacing any records previously written for it. The only
// error returned is a failure to load the article; embedding and index
// failures are reported through the result status.
func (p *Pipeline) AddDocument(ctx context.Context, id string) (*IngestResult, error) {
	a, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e := p.embedArticle(ctx, a)
	res := &IngestResult{
		ID:                id,
		Strategy:          e.strategy,
		Sections:          e.sections,
		ReducedConfidence: e.reduced,
	}

	if len(e.docs) == 0 {
		res.Status = StatusNotEmbedded
		res.Err = e.err
		p.logger.Warn("article saved but not embedded", append(logAttrs(res), "error", e.err)...)
		return res, nil
	}

	if err := p.index.Add(ctx, e.docs); err != nil {
		res.Status = StatusIndexWriteFailed
		res.Err = err
		p.logger.Error("article saved but not indexed", append(logAttrs(res), "error", err)...)
		return res, nil
	}
	res.Records = len(e.docs)

	keep := make(map[string]bool, len(e.docs))
	for _, d := range e.docs {
		keep[d.ID] = true
	}
	if err := p.deleteRecords(ctx, id, keep); err != nil {
		p.logger.Warn("failed to remove stale records",
			"article_id", id,
			"error", err,
		)
	}

	if err := p.store.MarkSaved(ctx, id); err != nil {
		p.logger.Warn("failed to mark article saved",
			"article_id", id,
			"error", err,
		)
	}

	res.Status = StatusIndexed
	p.logger.Info("article indexed", append(logAttrs(res), "duration", time.Since(start))...)
	return res, nil
}

// QueryOutput is the answer to a similarity query.
type QueryOutput struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`

	// Fallback is set when Results are recent articles rather than
	// semantic matches.
	Fallback bool `json:"fallback,omitempty"`
}

// Query returns up to k articles most similar to text. It over-fetches 2k
// records so that several sections of one article still leave room for k
// distinct articles. When the query cannot be embedded, the index fails or
// the index has nothing to offer, the most recent articles are returned
// instead, flagged as fallback results.
func (p *Pipeline) Query(ctx context.Context, text string, k int) (*QueryOutput, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := p.embedVector(ctx, text)
	if err != nil {
		p.logger.Warn("query embedding failed, returning recent articles", "error", err)
		return p.fallback(ctx, text)
	}

	hits, err := p.index.Query(ctx, vec, 2*k)
	if err != nil {
		p.logger.Warn("vector query failed, returning recent articles", "error", err)
		return p.fallback(ctx, text)
	}
	if len(hits) == 0 {
		p.logger.Debug("vector index returned no hits, returning recent articles")
		return p.fallback(ctx, text)
	}

	results := Consolidate(ctx, hits, k, p.lookup)
	return &QueryOutput{
		Query:   text,
		Results: results,
		Count:   len(results),
	}, nil
}

func (p *Pipeline) fallback(ctx context.Context, text string) (*QueryOutput, error) {
	recent, err := p.store.Recent(ctx, p.recentLimit)
	if err != nil {
		return nil, fmt.Errorf("loading recent articles: %w", err)
	}

	results := make([]Result, 0, len(recent))
	for _, a := range recent {
		results = append(results, Result{
			ID:       a.ID,
			Metadata: articleMetadata(a),
			Fallback: true,
		})
	}

	return &QueryOutput{
		Query:    text,
		Results:  results,
		Count:    len(results),
		Fallback: true,
	}, nil
}

func (p *Pipeline) lookup(ctx context.Context, id string) (vector.Metadata, bool) {
	a, err := p.store.Get(ctx, id)
	if err != nil {
		p.logger.Debug("parent article lookup failed",
			"article_id", id,
			"error", err,
		)
		return vector.Metadata{}, false
	}
	return articleMetadata(a), true
}

// Reconcile deletes index records whose article is gone from the primary
// store and returns how many were removed.
func (p *Pipeline) Reconcile(ctx context.Context) (int, error) {
	ids, err := p.index.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing index ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	owners, err := p.owners(ctx, ids)
	if err != nil {
		return 0, err
	}

	candidates := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if owner := owners[id]; !seen[owner] {
			seen[owner] = true
			candidates = append(candidates, owner)
		}
	}

	exists := make(map[string]bool, len(candidates))
	for start := 0; start < len(candidates); start += reconcileBatch {
		end := min(start+reconcileBatch, len(candidates))
		found, err := p.store.Existing(ctx, candidates[start:end])
		if err != nil {
			return 0, fmt.Errorf("checking primary store: %w", err)
		}
		for id := range found {
			exists[id] = true
		}
	}

	var orphans []string
	for _, id := range ids {
		if !exists[owners[id]] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	if err := p.index.Delete(ctx, orphans); err != nil {
		return 0, fmt.Errorf("deleting orphaned records: %w", err)
	}

	p.logger.Info("removed orphaned records", "count", len(orphans))
	return len(orphans), nil
}

// owners maps each record id to the article it belongs to. Only ids shaped
// like section ids can belong to another article, so only those are loaded
// to read their section metadata.
func (p *Pipeline) owners(ctx context.Context, ids []string) (map[string]string, error) {
	owners := make(map[string]string, len(ids))
	var sectionLike []string
	for _, id := range ids {
		owners[id] = id
		if _, _, ok := vector.ParseSectionID(id); ok {
			sectionLike = append(sectionLike, id)
		}
	}

	for start := 0; start < len(sectionLike); start += reconcileBatch {
		end := min(start+reconcileBatch, len(sectionLike))
		docs, err := p.index.Get(ctx, sectionLike[start:end])
		if err != nil {
			return nil, fmt.Errorf("loading index records: %w", err)
		}
		for _, d := range docs {
			owners[d.ID] = d.ArticleID()
		}
	}
	return owners, nil
}

// DeleteDocument removes every index record of an article and clears its
// saved flag. It returns the number of records removed.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) (int, error) {
	ids, err := p.recordsOf(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		if err := p.index.Delete(ctx, ids); err != nil {
			return 0, fmt.Errorf("deleting records of %s: %w", id, err)
		}
	}

	if err := p.store.UnmarkSaved(ctx, id); err != nil {
		var nf storage.NotFoundError
		if !errors.As(err, &nf) {
			return len(ids), fmt.Errorf("clearing saved flag of %s: %w", id, err)
		}
	}

	p.logger.Info("article removed from index",
		"article_id", id,
		"records", len(ids),
	)
	return len(ids), nil
}

// deleteRecords removes the records of article id that are not in keep.
func (p *Pipeline) deleteRecords(ctx context.Context, id string, keep map[string]bool) error {
	ids, err := p.recordsOf(ctx, id)
	if err != nil {
		return err
	}

	var stale []string
	for _, rid := range ids {
		if !keep[rid] {
			stale = append(stale, rid)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return p.index.Delete(ctx, stale)
}

// recordsOf lists the index ids belonging to article id: its own record and
// the records flagged as its sections.
func (p *Pipeline) recordsOf(ctx context.Context, id string) ([]string, error) {
	all, err := p.index.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing index ids: %w", err)
	}

	var (
		out         []string
		sectionLike []string
	)
	for _, rid := range all {
		if rid == id {
			out = append(out, rid)
			continue
		}
		if parent, _, ok := vector.ParseSectionID(rid); ok && parent == id {
			sectionLike = append(sectionLike, rid)
		}
	}
	if len(sectionLike) == 0 {
		return out, nil
	}

	docs, err := p.index.Get(ctx, sectionLike)
	if err != nil {
		return nil, fmt.Errorf("loading index records: %w", err)
	}
	for _, d := range docs {
		if d.Metadata.IsSection && d.ArticleID() == id {
			out = append(out, d.ID)
		}
	}
	return out, nil
}

// Stats summarizes the pipeline's stores.
type Stats struct {
	Vectors  int    `json:"vectors"`
	Articles int    `json:"articles"`
	Model    string `json:"model"`

	// CacheEntries is -1 when no cache is configured.
	CacheEntries int `json:"cache_entries"`
}

// Stats counts index records, cached embeddings and stored articles.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	vectors, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting vectors: %w", err)
	}

	articles, err := p.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}

	cached := -1
	if p.cache != nil {
		if cached, err = p.cache.Len(ctx); err != nil {
			return nil, fmt.Errorf("counting cache entries: %w", err)
		}
	}

	return &Stats{
		Vectors:      vectors,
		Articles:     articles,
		Model:        p.embedder.Model(),
		CacheEntries: cached,
	}, nil
}

// Close releases the index, the cache and the embedder. The primary store is
// owned by the caller.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.index.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
