package local

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/folio/ai"
	"golang.org/x/sync/errgroup"
)

// encoder turns one text into an unnormalized vector. *Model is the
// production encoder.
type encoder interface {
	Embed(text string, maxLength int) ([]float32, error)
	Name() string
	Dimension() int
	MaxLength() int
	Close() error
}

// Embedder implements ai.Embedder with a model loaded from disk.
type Embedder struct {
	model     encoder
	maxLength int
	pool      *ants.Pool
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ ai.Embedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithWorkers sets how many inferences may run at once.
// Default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Embedder) error {
		if n < 1 {
			n = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithMaxLength overrides the manifest's token limit.
func WithMaxLength(n int) Option {
	return func(e *Embedder) error {
		if n > 0 {
			e.maxLength = n
		}
		return nil
	}
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config ai.LocalConfig, opts ...Option) (*Embedder, error) {
	model, err := LoadModel(config.ModelDir, config.Runtime)
	if err != nil {
		return nil, fmt.Errorf("load local model %s: %w", config.ModelDir, err)
	}
	return withEncoder(model, config, opts...)
}

// withEncoder wraps model in a worker pool. The Embedder owns model.
func withEncoder(model encoder, config ai.LocalConfig, opts ...Option) (*Embedder, error) {
	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		model.Close()
		return nil, err
	}

	e := &Embedder{
		model:     model,
		maxLength: model.MaxLength(),
		pool:      pool,
		logger:    slog.Default().With("component", "local-embedder"),
	}

	all := append([]Option{WithMaxLength(config.MaxLength)}, opts...)
	if config.Workers > 0 {
		all = append([]Option{WithWorkers(config.Workers)}, all...)
	}
	for _, opt := range all {
		if err := opt(e); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.logger.Info("loaded local embedding model",
		"model", model.Name(), "dimension", model.Dimension(), "max_length", e.maxLength)
	return e, nil
}

// NewEmbedder loads the model in config.ModelDir.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config ai.LocalConfig, opts ...Option) (ai.Embedder, error) {
	return newEmbedder(config, opts...)
}

// EmbedText runs one inference on the worker pool and waits for it or for
// ctx to be done.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEmbedderClosed
	}
	// Submit blocks while every worker is busy.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		vector []float32
		err    error
	}
	result := make(chan outcome, 1)
	err := e.pool.Submit(func() {
		vector, err := e.model.Embed(text, e.maxLength)
		if err != nil {
			result <- outcome{err: err}
			return
		}
		result <- outcome{vector: ai.NormalizeVector(vector)}
	})
	if err != nil {
		return nil, fmt.Errorf("submit inference: %w", err)
	}

	select {
	case out := <-result:
		return out.vector, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedTexts runs one independent inference per text and returns the vectors
// in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			vector, err := e.EmbedText(gctx, text)
			if err != nil {
				return err
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("local embedding failed", "count", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}

// Dimension returns the model's vector length.
func (e *Embedder) Dimension() int {
	return e.model.Dimension()
}

// Model returns the model name.
func (e *Embedder) Model() string {
	return e.model.Name()
}

// Close releases the worker pool and the inference session. Calls made
// after Close fail with ErrEmbedderClosed.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.pool.Release()
	return e.model.Close()
}
