package rag

import (
	"context"
	"sort"

	"github.com/papercomputeco/quill/pkg/vector"
)

// SectionMatch is a section of a long article that matched a query.
type SectionMatch struct {
	ID       string  `json:"id"`
	Index    int     `json:"index"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary,omitempty"`
	Distance float32 `json:"distance"`
}

// Result is a document level query result.
type Result struct {
	ID       string          `json:"id"`
	Metadata vector.Metadata `json:"metadata"`

	// Distance is the lowest cosine distance among the article's records.
	Distance float32 `json:"distance"`

	// Sections lists up to three best matching sections, nearest first.
	Sections []SectionMatch `json:"sections,omitempty"`

	// Fallback marks a non-semantic result returned because the query
	// could not be answered from the index.
	Fallback bool `json:"fallback,omitempty"`
}

// LookupFunc resolves an article's metadata by id. ok is false when the
// article cannot be loaded.
type LookupFunc func(ctx context.Context, id string) (meta vector.Metadata, ok bool)

// Consolidate merges raw index hits into at most k document level results.
// Section hits are grouped under their parent article, which is looked up on
// first sight; each result carries the minimum distance across its records.
// Results are ordered by ascending distance, ties keeping the order in which
// the index returned them.
func Consolidate(ctx context.Context, hits []vector.QueryResult, k int, lookup LookupFunc) []Result {
	var (
		order   []*Result
		byID    = make(map[string]*Result)
		resolve = func(id string, fallback vector.Metadata) *Result {
			if r, ok := byID[id]; ok {
				return r
			}
			meta := fallback
			if lookup != nil {
				if m, ok := lookup(ctx, id); ok {
					meta = m
				}
			}
			r := &Result{ID: id, Metadata: meta, Distance: -1}
			byID[id] = r
			order = append(order, r)
			return r
		}
	)

	for _, hit := range hits {
		if !hit.Metadata.IsSection {
			r, ok := byID[hit.ID]
			if !ok {
				r = &Result{ID: hit.ID, Metadata: hit.Metadata, Distance: hit.Distance}
				byID[hit.ID] = r
				order = append(order, r)
				continue
			}
			r.Distance = minDistance(r.Distance, hit.Distance)
			continue
		}

		parentID := hit.ArticleID()
		r := resolve(parentID, parentMetadata(hit.Metadata))
		r.Distance = minDistance(r.Distance, hit.Distance)
		r.Sections = append(r.Sections, SectionMatch{
			ID:       hit.ID,
			Index:    hit.Metadata.SectionIndex,
			Title:    hit.Metadata.SectionTitle,
			Summary:  hit.Metadata.Summary,
			Distance: hit.Distance,
		})
	}

	for _, r := range order {
		sort.SliceStable(r.Sections, func(i, j int) bool {
			return r.Sections[i].Distance < r.Sections[j].Distance
		})
		if len(r.Sections) > MaxSectionMatches {
			r.Sections = r.Sections[:MaxSectionMatches]
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Distance < order[j].Distance
	})

	if k >= 0 && len(order) > k {
		order = order[:k]
	}

	out := make([]Result, len(order))
	for i, r := range order {
		out[i] = *r
	}
	return out
}

// minDistance treats a negative current value as unset.
func minDistance(cur, d float32) float32 {
	if cur < 0 || d < cur {
		return d
	}
	return cur
}

// parentMetadata strips the section fields from a section's metadata so it
// can stand in for the parent's when the parent cannot be looked up.
func parentMetadata(m vector.Metadata) vector.Metadata {
	m.IsSection = false
	m.ParentID = ""
	m.SectionIndex = 0
	m.SectionTitle = ""
	m.Summary = ""
	return m
}
