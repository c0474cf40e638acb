package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/ai/local"
	"github.com/poiesic/folio/ai/openai"
)

// Resolver embeds text with a primary backend and falls back to a secondary
// one. It implements ai.TaggedEmbedder.
type Resolver struct {
	primary      ai.Embedder
	fallback     ai.Embedder
	subBatchSize int
	logger       *slog.Logger
}

var _ ai.TaggedEmbedder = (*Resolver)(nil)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSubBatchSize sets how many texts go to a backend per call.
func WithSubBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.subBatchSize = n
		}
	}
}

// Factories build backends from configuration. Tests replace them.
type Factories struct {
	Local  func(ai.LocalConfig) (ai.Embedder, error)
	Remote func(ai.RemoteConfig) (ai.Embedder, error)
}

// DefaultFactories builds the ai/local and ai/openai backends.
func DefaultFactories() Factories {
	return Factories{
		Local: func(cfg ai.LocalConfig) (ai.Embedder, error) {
			return local.NewEmbedder(cfg)
		},
		Remote: func(cfg ai.RemoteConfig) (ai.Embedder, error) {
			return openai.NewEmbedder(cfg)
		},
	}
}

// NewResolver builds the backends described by cfg. It never fails: a
// backend that cannot be constructed is logged and its slot left empty, and
// calls then fail with ErrNoBackend if no slot is usable.
func NewResolver(cfg *ai.Config, opts ...Option) *Resolver {
	return NewResolverWithFactories(cfg, DefaultFactories(), opts...)
}

// NewResolverWithFactories is NewResolver with explicit backend factories.
func NewResolverWithFactories(cfg *ai.Config, factories Factories, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	cfg.Normalize()

	r := &Resolver{
		subBatchSize: cfg.SubBatchSize,
		logger:       slog.Default().With("component", "embedding-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}

	switch cfg.Backend {
	case ai.BackendRemote:
		r.primary = r.build("primary", ai.BackendRemote, func() (ai.Embedder, error) {
			return factories.Remote(cfg.Remote)
		})
	case ai.BackendLocal:
		r.primary = r.build("primary", ai.BackendLocal, func() (ai.Embedder, error) {
			return factories.Local(cfg.Local)
		})
	default:
		r.logger.Error("unknown embedding backend", "backend", cfg.Backend)
	}

	if cfg.Backend != ai.BackendRemote {
		if cfg.Fallback.Enabled() {
			r.fallback = r.build("fallback", ai.BackendRemote, func() (ai.Embedder, error) {
				return factories.Remote(cfg.Fallback)
			})
		} else {
			r.logger.Debug("no fallback backend configured")
		}
	}

	return r
}

// NewResolverFromEmbedders wraps already constructed backends. Either may be nil.
func NewResolverFromEmbedders(primary, fallback ai.Embedder, opts ...Option) *Resolver {
	r := &Resolver{
		primary:      primary,
		fallback:     fallback,
		subBatchSize: ai.DefaultSubBatchSize,
		logger:       slog.Default().With("component", "embedding-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) build(slot, backend string, fn func() (ai.Embedder, error)) ai.Embedder {
	e, err := fn()
	if err != nil {
		r.logger.Error("failed to initialize embedding backend", "slot", slot, "backend", backend, "err", err)
		return nil
	}
	r.logger.Info("initialized embedding backend", "slot", slot, "backend", backend, "model", e.Model())
	return e
}

// Primary returns the primary backend, or nil.
func (r *Resolver) Primary() ai.Embedder { return r.primary }

// Fallback returns the fallback backend, or nil.
func (r *Resolver) Fallback() ai.Embedder { return r.fallback }

// EmbedText embeds one text with the first backend that succeeds.
func (r *Resolver) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := r.EmbedTagged(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0].Vector, nil
}

// EmbedTexts embeds texts in order, in sequential sub-batches.
func (r *Resolver) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := r.EmbedTagged(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = e.Vector
	}
	return vectors, nil
}

// EmbedTagged embeds texts in order and records which model produced each
// vector. Sub-batches may be served by different backends.
func (r *Resolver) EmbedTagged(ctx context.Context, texts []string) ([]ai.Embedding, error) {
	out := make([]ai.Embedding, 0, len(texts))

	for start := 0; start < len(texts); start += r.subBatchSize {
		end := min(start+r.subBatchSize, len(texts))
		batch := texts[start:end]

		vectors, model, err := r.embedBatch(ctx, batch)
		if err != nil {
			r.logger.Error("embedding sub-batch failed", "start", start, "size", len(batch), "err", err)
			return nil, err
		}
		for _, v := range vectors {
			out = append(out, ai.Embedding{Vector: v, Model: model})
		}
	}
	return out, nil
}

// embedBatch tries the primary and then the fallback.
func (r *Resolver) embedBatch(ctx context.Context, batch []string) ([][]float32, string, error) {
	var errs []error

	for _, slot := range []struct {
		name     string
		embedder ai.Embedder
	}{
		{"primary", r.primary},
		{"fallback", r.fallback},
	} {
		if slot.embedder == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		vectors, err := slot.embedder.EmbedTexts(ctx, batch)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("%w: sent %d, got %d", ErrVectorCount, len(batch), len(vectors))
		}
		if err != nil {
			r.logger.Warn("embedding backend failed", "slot", slot.name, "model", slot.embedder.Model(), "err", err)
			errs = append(errs, fmt.Errorf("%s (%s): %w", slot.name, slot.embedder.Model(), err))
			continue
		}
		return vectors, slot.embedder.Model(), nil
	}

	if len(errs) == 0 {
		return nil, "", ErrNoBackend
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// Dimension reports the primary backend's dimension, or the fallback's when
// the primary is absent.
func (r *Resolver) Dimension() int {
	if r.primary != nil {
		return r.primary.Dimension()
	}
	if r.fallback != nil {
		return r.fallback.Dimension()
	}
	return 0
}

// Model reports the primary backend's model, or the fallback's when the
// primary is absent.
func (r *Resolver) Model() string {
	if r.primary != nil {
		return r.primary.Model()
	}
	if r.fallback != nil {
		return r.fallback.Model()
	}
	return ""
}

// Close closes any backend that holds resources.
func (r *Resolver) Close() error {
	var errs []error
	for _, e := range []ai.Embedder{r.primary, r.fallback} {
		if c, ok := e.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
