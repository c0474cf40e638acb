package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

const (
	// DefaultPoolSize is the number of documents processed concurrently.
	DefaultPoolSize = 10

	// DefaultJobTimeout bounds a single pipeline run.
	DefaultJobTimeout = 10 * time.Minute
)

// Queue runs Orchestrator.Process on a bounded worker pool.
type Queue struct {
	orchestrator *Orchestrator
	docs         storage.DocumentStore
	files        storage.FileStore
	pool         *ants.Pool
	poolSize     int
	nonblocking  bool
	jobTimeout   time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// QueueOption is a functional option for configuring a Queue.
type QueueOption func(*Queue) error

// WithPoolSize sets how many documents are processed at once.
func WithPoolSize(size int) QueueOption {
	return func(q *Queue) error {
		if size <= 0 {
			return fmt.Errorf("pool size must be positive: %d", size)
		}
		q.poolSize = size
		return nil
	}
}

// WithNonblocking makes Enqueue fail instead of waiting when every worker
// is busy.
func WithNonblocking(nonblocking bool) QueueOption {
	return func(q *Queue) error {
		q.nonblocking = nonblocking
		return nil
	}
}

// WithJobTimeout bounds each pipeline run. Zero disables the bound.
func WithJobTimeout(timeout time.Duration) QueueOption {
	return func(q *Queue) error {
		if timeout < 0 {
			return fmt.Errorf("job timeout must not be negative: %s", timeout)
		}
		q.jobTimeout = timeout
		return nil
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) error {
		if logger != nil {
			q.logger = logger.With("component", "queue")
		}
		return nil
	}
}

// NewQueue creates a Queue that processes documents with o.
func NewQueue(o *Orchestrator, opts ...QueueOption) (*Queue, error) {
	if o == nil {
		return nil, errors.New("orchestrator required")
	}

	q := &Queue{
		orchestrator: o,
		docs:         o.docs,
		files:        o.files,
		poolSize:     DefaultPoolSize,
		jobTimeout:   DefaultJobTimeout,
		logger:       slog.Default().With("component", "queue"),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(q.poolSize, ants.WithNonblocking(q.nonblocking))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	q.pool = pool
	return q, nil
}

// Enqueue schedules a pipeline run and returns without waiting for it.
func (q *Queue) Enqueue(id core.ID) error {
	q.wg.Add(1)
	err := q.pool.Submit(func() {
		defer q.wg.Done()
		q.process(id)
	})
	if err != nil {
		q.wg.Done()
		return fmt.Errorf("%w: %s: %w", ErrEnqueue, id, err)
	}
	return nil
}

func (q *Queue) process(id core.ID) {
	ctx := context.Background()
	if q.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}

	err := q.orchestrator.Process(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrClaimConflict):
		q.logger.Info("document already claimed", "document", id)
	default:
		q.logger.Warn("pipeline run failed", "document", id, "err", err)
	}
}

// Retrigger moves a COMPLETED or FAILED document back to PENDING and
// schedules a fresh run.
func (q *Queue) Retrigger(ctx context.Context, id core.ID) error {
	if _, err := q.docs.ResetDocument(ctx, id); err != nil {
		return err
	}
	return q.Enqueue(id)
}

// Submit stores an uploaded file, creates its PENDING document and schedules
// processing. A document that cannot be scheduled stays PENDING and is
// still returned.
func (q *Queue) Submit(ctx context.Context, name string, r io.Reader) (*core.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	id := core.NewID()
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	key := "uploads/" + id.String() + "/" + base
	if err := q.files.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc, err := q.docs.CreateDocument(ctx, &core.Document{
		ID:         id,
		Status:     core.StatusPending,
		FileKey:    key,
		FileName:   base,
		FileDigest: core.HashContent(data),
	})
	if err != nil {
		if derr := q.files.Delete(ctx, key); derr != nil {
			q.logger.Warn("failed to remove orphaned upload", "key", key, "err", derr)
		}
		return nil, err
	}

	if err := q.Enqueue(doc.ID); err != nil {
		q.logger.Error("document left pending", "document", doc.ID, "err", err)
	}
	return doc, nil
}

// Wait blocks until every scheduled run has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Running reports how many runs are in progress.
func (q *Queue) Running() int {
	return q.pool.Running()
}

// Release waits for scheduled runs and stops the worker pool.
// The queue must not be used afterwards.
func (q *Queue) Release() {
	q.wg.Wait()
	q.pool.Release()
}
