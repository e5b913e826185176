package embeddings

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrMalformedResponse is returned when a provider answers without a
	// usable vector.
	ErrMalformedResponse = errors.New("malformed embedding response")

	// ErrTimeout is returned when a provider call exceeds its deadline.
	ErrTimeout = errors.New("embedding timed out")
)
