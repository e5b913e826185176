// Package article defines the article record kept in the primary record store.
package article

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is returned when an article is missing a required field.
var ErrInvalid = errors.New("invalid article")

// Article is a single aggregated article. ID, Title and URL are required;
// everything else is optional.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
	Tags        []string  `json:"tags,omitempty"`

	// Saved is set once the article has been written to the vector index.
	Saved bool `json:"saved"`

	Claps     int       `json:"claps,omitempty"`
	Responses int       `json:"responses,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the required fields.
func (a *Article) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil article", ErrInvalid)
	}
	switch {
	case strings.TrimSpace(a.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalid)
	case strings.TrimSpace(a.Title) == "":
		return fmt.Errorf("%w: title is required for %s", ErrInvalid, a.ID)
	case strings.TrimSpace(a.URL) == "":
		return fmt.Errorf("%w: url is required for %s", ErrInvalid, a.ID)
	}
	return nil
}

// EmbeddingText is the text the pipeline embeds for an article: the title and
// the body joined by a single space.
func (a *Article) EmbeddingText() string {
	if a.Body == "" {
		return a.Title
	}
	return a.Title + " " + a.Body
}

// EncodeTags serializes tags for storage in a text column. A nil or empty
// slice encodes to the empty string.
func EncodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

// DecodeTags parses a stored tag column. Legacy rows holding a plain comma
// separated string are accepted as well.
func DecodeTags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
		return tags, nil
	}

	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags, nil
}
