package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIndexed is emitted after every ingestion attempt,
	// whether or not the article made it into the vector index.
	EventTypeDocumentIndexed = "quill.document.indexed"
)

// DocumentIndexedEvent is a transport-neutral event payload for one
// ingestion attempt.
type DocumentIndexedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Document      DocumentMeta  `json:"document"`
	Ingest        IngestOutcome `json:"ingest"`
}

// EventSource identifies the quill instance that produced the event.
type EventSource struct {
	Service string `json:"service"`
	Model   string `json:"model,omitempty"`
}

// DocumentMeta identifies the article.
type DocumentMeta struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// IngestOutcome captures what the pipeline did with the article.
type IngestOutcome struct {
	Status            string `json:"status"`
	Strategy          string `json:"strategy,omitempty"`
	Records           int    `json:"records"`
	Sections          int    `json:"sections,omitempty"`
	ReducedConfidence bool   `json:"reduced_confidence,omitempty"`
	Error             string `json:"error,omitempty"`
	DurationMs        int64  `json:"duration_ms"`
}

// NewDocumentIndexedEvent returns an event stamped with a fresh id and the
// current time.
func NewDocumentIndexedEvent(source EventSource, doc DocumentMeta, outcome IngestOutcome) *DocumentIndexedEvent {
	return &DocumentIndexedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentIndexed,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Document:      doc,
		Ingest:        outcome,
	}
}
