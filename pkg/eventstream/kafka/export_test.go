package kafka

import "time"

// NewPublisherWithWriter builds a Publisher over a custom writer.
func NewPublisherWithWriter(w messageWriter, timeout time.Duration) *Publisher {
	return newPublisher(w, timeout)
}
