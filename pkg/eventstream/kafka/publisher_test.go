package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/quill/pkg/eventstream"
	"github.com/papercomputeco/quill/pkg/eventstream/kafka"
)

type fakeWriter struct {
	msgs     []kafkago.Message
	err      error
	closed   bool
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w   *fakeWriter
		p   *kafka.Publisher
		evt *eventstream.DocumentIndexedEvent
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(w, time.Second)
		evt = eventstream.NewDocumentIndexedEvent(
			eventstream.EventSource{Service: "quill"},
			eventstream.DocumentMeta{ID: "a1"},
			eventstream.IngestOutcome{Status: "indexed", Records: 1},
		)
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(MatchError(kafka.ErrNoBrokers))
	})

	It("creates a writer-backed publisher", func() {
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub).NotTo(BeNil())
	})

	It("writes the event as JSON keyed by document id", func() {
		Expect(p.PublishDocumentIndexed(context.Background(), evt)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))
		Expect(w.deadline).To(BeTrue())

		msg := w.msgs[0]
		Expect(string(msg.Key)).To(Equal("a1"))

		var got eventstream.DocumentIndexedEvent
		Expect(json.Unmarshal(msg.Value, &got)).To(Succeed())
		Expect(got.EventID).To(Equal(evt.EventID))
		Expect(got.Ingest.Status).To(Equal("indexed"))

		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeDocumentIndexed)}))
	})

	It("rejects nil events", func() {
		Expect(p.PublishDocumentIndexed(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(w.msgs).To(BeEmpty())
	})

	It("wraps writer errors", func() {
		w.err = errors.New("broker down")
		err := p.PublishDocumentIndexed(context.Background(), evt)
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
