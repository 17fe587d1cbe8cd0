// Package worker provides an asynchronous worker pool that indexes published
// drafts into the knowledge vector store using the provided
// embeddings.Embedder and vector.Driver.
//
// The pool keeps embedding calls off the publish path so that a slow or
// unavailable embedding backend never delays or fails a pipeline pass.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/embeddings"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/vector"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64
	defaultJobTimeout        = 60 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Draft activity.ContentDraft
}

// Config is the configuration options for the worker pool.
type Config struct {
	// VectorDriver stores the draft embeddings.
	VectorDriver vector.Driver

	// Embedder generates the embeddings.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 64).
	QueueSize uint

	// JobTimeout bounds one embed-and-store job (defaults to 60s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes indexing jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.VectorDriver == nil || c.Embedder == nil {
		return nil, errors.New("worker pool requires a vector driver and an embedder")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
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
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("index job queued", "draft_key", job.Draft.Key)
		return true
	default:
		p.logger.Error("index job not queued, queue full, job dropped", "draft_key", job.Draft.Key)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Enqueue must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("index worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("index worker stopped", "worker_id", id)
}

// processJob embeds the draft body and stores it. Errors are logged and not
// returned: indexing is best effort.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := Index(ctx, p.config.Embedder, p.config.VectorDriver, job.Draft); err != nil {
		p.logger.Warn("failed to index draft", "draft_key", job.Draft.Key, "error", err)
		return
	}

	p.logger.Debug("indexed draft", "draft_key", job.Draft.Key, "type", job.Draft.Type)
}

// Index embeds d and stores it under its draft key. Drafts without body
// text are skipped.
func Index(ctx context.Context, e embeddings.Embedder, vd vector.Driver, d activity.ContentDraft) error {
	text := strings.TrimSpace(d.Body)
	if text == "" {
		return nil
	}

	embedding, err := e.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding draft %s: %w", d.Key, err)
	}

	doc := vector.Document{
		ID:        d.Key,
		DraftID:   d.ID,
		Type:      string(d.Type),
		Text:      text,
		Embedding: embedding,
	}
	if err := vd.Add(ctx, []vector.Document{doc}); err != nil {
		return fmt.Errorf("storing embedding for %s: %w", d.Key, err)
	}
	return nil
}
