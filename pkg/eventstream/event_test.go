package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals DocumentIndexedEvent with expected top-level keys", func() {
		event := eventstream.NewDocumentIndexedEvent(
			eventstream.EventSource{Service: "quill", Model: "voyage-large-2"},
			eventstream.DocumentMeta{ID: "a1", Title: "Title", URL: "https://example.com/a1"},
			eventstream.IngestOutcome{Status: "indexed", Strategy: "long", Records: 3, Sections: 3, DurationMs: 1200},
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("document"))
		Expect(got).To(HaveKey("ingest"))
		Expect(got["event_type"]).To(Equal("quill.document.indexed"))
	})

	It("stamps every event with a distinct id", func() {
		a := eventstream.NewDocumentIndexedEvent(eventstream.EventSource{}, eventstream.DocumentMeta{ID: "a"}, eventstream.IngestOutcome{})
		b := eventstream.NewDocumentIndexedEvent(eventstream.EventSource{}, eventstream.DocumentMeta{ID: "a"}, eventstream.IngestOutcome{})
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EmittedAt.IsZero()).To(BeFalse())
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil document event"))
	})
})
