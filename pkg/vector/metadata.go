package vector

import (
	"strconv"
	"strings"
	"time"
)

// SectionSeparator joins an article id and a section index in section ids.
const SectionSeparator = "_section_"

// Metadata is stored next to every vector. Section records carry their
// parent's article fields plus the section fields.
type Metadata struct {
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	Summary     string    `json:"summary,omitempty"`

	IsSection    bool   `json:"is_section,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	SectionIndex int    `json:"section_index,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`

	// ReducedConfidence marks a vector averaged from fewer than half of the
	// article's chunks.
	ReducedConfidence bool `json:"reduced_confidence,omitempty"`
}

// SectionID returns the record id of section n of articleID.
func SectionID(articleID string, n int) string {
	return articleID + SectionSeparator + strconv.Itoa(n)
}

// ParseSectionID splits a section record id. ok is false for ids that are
// not section ids.
func ParseSectionID(id string) (articleID string, n int, ok bool) {
	i := strings.LastIndex(id, SectionSeparator)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+len(SectionSeparator):])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// ArticleID returns the id of the article a record belongs to. Only records
// flagged as sections belong to another article; a plain record whose own id
// happens to look like a section id is its own article.
func (d Document) ArticleID() string {
	if !d.Metadata.IsSection {
		return d.ID
	}
	if d.Metadata.ParentID != "" {
		return d.Metadata.ParentID
	}
	if parent, _, ok := ParseSectionID(d.ID); ok {
		return parent
	}
	return d.ID
}
