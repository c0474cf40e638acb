package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/poiesic/folio/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrVectorCount is returned when the server answers with a different number
// of vectors than texts were sent.
var ErrVectorCount = errors.New("embedding count mismatch")

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension atomic.Int64
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) error {
		e.logger = logger
		return nil
	}
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config ai.RemoteConfig, httpClient doer, opts ...Option) (*Embedder, error) {
	config = config.Normalized()
	if !config.Enabled() {
		return nil, errors.New("openai embedder: host and model are required")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	// Local OpenAI-compatible services accept any token; langchaingo
	// refuses an empty one.
	token := config.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
		openai.WithHTTPClient(&indexOrderingDoer{next: httpClient}),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		embedder: embedder,
		model:    config.Model,
		logger:   slog.Default().With("component", "openai-embedder"),
	}
	e.dimension.Store(int64(config.Dimension))

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewEmbedder creates a new remote embedder.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config ai.RemoteConfig, opts ...Option) (ai.Embedder, error) {
	return newEmbedder(config, nil, opts...)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrVectorCount, len(texts), len(vectors))
	}

	if err := e.checkDimension(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// checkDimension infers the dimension from the first response when it was
// not configured, and rejects vectors of any other length afterwards.
func (e *Embedder) checkDimension(vectors [][]float32) error {
	want := int(e.dimension.Load())
	if want == 0 {
		want = len(vectors[0])
		if e.dimension.CompareAndSwap(0, int64(want)) {
			e.logger.Info("inferred embedding dimension", "model", e.model, "dimension", want)
		} else {
			want = int(e.dimension.Load())
		}
	}
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), want)
		}
	}
	return nil
}

// Dimension returns the configured or inferred vector length.
func (e *Embedder) Dimension() int {
	return int(e.dimension.Load())
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
