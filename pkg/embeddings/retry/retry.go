// Package retry wraps an embeddings.Embedder with input truncation, bounded
// retries with exponential backoff, and per-call deadlines.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/quill/pkg/embeddings"
	"github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/utils"
)

const (
	// DefaultMaxChars is the input length, in characters, beyond which text is
	// truncated before it is sent to the provider.
	DefaultMaxChars = 8000

	// DefaultAttempts is the number of provider calls made before giving up.
	DefaultAttempts = 3

	// DefaultCallTimeout bounds a single provider call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultHardCap bounds how long the caller waits on a single attempt,
	// even if the provider ignores its context.
	DefaultHardCap = 40 * time.Second
)

// Client is an embeddings.Embedder that retries a wrapped provider.
type Client struct {
	embedder    embeddings.Embedder
	maxChars    int
	attempts    int
	callTimeout time.Duration
	hardCap     time.Duration
	backoff     func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxChars sets the truncation limit in characters.
func WithMaxChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithAttempts sets the number of attempts.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithCallTimeout sets the deadline passed to each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithHardCap sets how long the caller waits on one attempt before
// abandoning it.
func WithHardCap(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hardCap = d
		}
	}
}

// WithBackoff replaces the delay computed between attempts.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithLogger sets the logger used to report failed attempts.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps embedder.
func New(embedder embeddings.Embedder, opts ...Option) *Client {
	c := &Client{
		embedder:    embedder,
		maxChars:    DefaultMaxChars,
		attempts:    DefaultAttempts,
		callTimeout: DefaultCallTimeout,
		hardCap:     DefaultHardCap,
		backoff:     ExponentialBackoff,
		sleep:       sleepContext,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExponentialBackoff waits 2^attempt seconds after the zero-based attempt.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Embed truncates text and calls the provider until it returns a non-empty
// vector or the attempts run out. The final error wraps
// embeddings.ErrEmbedding and the last attempt's error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = utils.Head(text, c.maxChars)

	var lastErr error
	for attempt := range c.attempts {
		vec, err := c.call(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		c.logger.Warn("embedding attempt failed",
			"attempt", attempt+1,
			"max_attempts", c.attempts,
			"model", c.embedder.Model(),
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
		if attempt < c.attempts-1 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", embeddings.ErrEmbedding, c.attempts, lastErr)
}

type result struct {
	vec []float32
	err error
}

// call runs one provider call in its own goroutine so that a provider which
// ignores its context still cannot hold the caller past the hard cap.
func (c *Client) call(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		vec, err := c.embedder.Embed(callCtx, text)
		done <- result{vec: vec, err: err}
	}()

	timer := time.NewTimer(c.hardCap)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: call exceeded %s: %w", embeddings.ErrTimeout, c.callTimeout, r.err)
			}
			return nil, r.err
		}
		if len(r.vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector", embeddings.ErrMalformedResponse)
		}
		return r.vec, nil

	case <-timer.C:
		return nil, fmt.Errorf("%w: abandoned after %s", embeddings.ErrTimeout, c.hardCap)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Model reports the wrapped provider's model.
func (c *Client) Model() string {
	return c.embedder.Model()
}

// Close closes the wrapped provider.
func (c *Client) Close() error {
	return c.embedder.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ embeddings.Embedder = (*Client)(nil)
