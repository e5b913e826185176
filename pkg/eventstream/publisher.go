package eventstream

import "context"

// Publisher publishes document events to an event stream backend.
type Publisher interface {
	PublishDocumentIndexed(ctx context.Context, event *DocumentIndexedEvent) error
	Close() error
}
