// Package ingest provides an asynchronous worker pool that feeds stored
// articles through the RAG pipeline.
//
// The pool decouples embedding, which may take minutes for a long article
// under provider retries, from the callers that request it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/quill/pkg/eventstream"
	"github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/rag"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// ArticleID is the id of an article already in the primary store.
	ArticleID string
}

// Indexer adds a stored article to the vector index. *rag.Pipeline
// satisfies it.
type Indexer interface {
	AddDocument(ctx context.Context, id string) (*rag.IngestResult, error)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Indexer runs each job.
	Indexer Indexer

	// Publisher receives an event per processed job. Optional.
	Publisher eventstream.Publisher

	// Source is stamped on published events.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single job. Zero means no limit.
	JobTimeout time.Duration

	// OnResult is called after each job with its outcome. Optional; it is
	// called from worker goroutines.
	OnResult func(job Job, res *rag.IngestResult, err error)

	Logger *slog.Logger
}

// Stats counts jobs by outcome.
type Stats struct {
	Queued      int64 `json:"queued"`
	Dropped     int64 `json:"dropped"`
	Indexed     int64 `json:"indexed"`
	NotEmbedded int64 `json:"not_embedded"`
	WriteFailed int64 `json:"index_write_failed"`
	Failed      int64 `json:"failed"`
}

// Pool processes ingestion jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against sends racing with Close.
	mu     sync.RWMutex
	closed bool

	queued      atomic.Int64
	dropped     atomic.Int64
	indexed     atomic.Int64
	notEmbedded atomic.Int64
	writeFailed atomic.Int64
	failed      atomic.Int64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Indexer == nil {
		return nil, fmt.Errorf("ingest: indexer is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: log,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		p.logger.Warn("job not queued, pool closed", "article_id", job.ArticleID)
		return false
	}

	select {
	case p.queue <- job:
		p.queued.Add(1)
		p.logger.Debug("job queued", "article_id", job.ArticleID)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Error("job not queued, queue full, job dropped", "article_id", job.ArticleID)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the job counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:      p.queued.Load(),
		Dropped:     p.dropped.Load(),
		Indexed:     p.indexed.Load(),
		NotEmbedded: p.notEmbedded.Load(),
		WriteFailed: p.writeFailed.Load(),
		Failed:      p.failed.Load(),
	}
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("ingest worker stopped", "worker_id", id)
}

// processJob runs a job through the indexer, records its outcome and
// publishes an event for it.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.config.Indexer.AddDocument(ctx, job.ArticleID)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		p.failed.Add(1)
		p.logger.Error("ingest failed",
			"article_id", job.ArticleID,
			"error", err,
		)
	case res.Status == rag.StatusIndexed:
		p.indexed.Add(1)
	case res.Status == rag.StatusNotEmbedded:
		p.notEmbedded.Add(1)
	case res.Status == rag.StatusIndexWriteFailed:
		p.writeFailed.Add(1)
	}

	if p.config.OnResult != nil {
		p.config.OnResult(job, res, err)
	}

	p.publish(ctx, job, res, err, elapsed)
}

func (p *Pool) publish(ctx context.Context, job Job, res *rag.IngestResult, err error, elapsed time.Duration) {
	if p.config.Publisher == nil {
		return
	}

	outcome := eventstream.IngestOutcome{
		Status:     "failed",
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	if res != nil {
		outcome.Status = string(res.Status)
		outcome.Strategy = string(res.Strategy)
		outcome.Records = res.Records
		outcome.Sections = res.Sections
		outcome.ReducedConfidence = res.ReducedConfidence
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
	}

	event := eventstream.NewDocumentIndexedEvent(
		p.config.Source,
		eventstream.DocumentMeta{ID: job.ArticleID},
		outcome,
	)
	if err := p.config.Publisher.PublishDocumentIndexed(ctx, event); err != nil {
		p.logger.Warn("failed to publish document event",
			"article_id", job.ArticleID,
			"error", err,
		)
	}
}
