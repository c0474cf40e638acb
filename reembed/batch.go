package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

// ChunkProcessor re-embeds the chunk set of one document.
type ChunkProcessor struct {
	docs           storage.DocumentStore
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewChunkProcessor creates a chunk processor.
// batchSize: number of chunk texts per embedder call
// maxRetries: maximum number of attempts per embedder call
// retryBaseDelay: base delay for exponential backoff
func NewChunkProcessor(docs storage.DocumentStore, embedder ai.Embedder, batchSize, maxRetries int, retryBaseDelay time.Duration) *ChunkProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkProcessor{
		docs:           docs,
		embedder:       embedder,
		batchSize:      batchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Current reports whether every chunk was already embedded by the
// embedder's current model.
func (cp *ChunkProcessor) Current(chunks []*core.Chunk) bool {
	model := cp.embedder.Model()
	for _, c := range chunks {
		if c.EmbeddingModel != model {
			return false
		}
	}
	return true
}

// Process re-embeds the given chunks and replaces the document's chunk set.
// Content, positions and page numbers are kept; vectors are normalized.
// Returns the number of chunks written.
func (cp *ChunkProcessor) Process(ctx context.Context, id core.ID, chunks []*core.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings := make([]ai.Embedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += cp.batchSize {
		end := min(start+cp.batchSize, len(chunks))

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		var batch []ai.Embedding
		err := RetryWithBackoff(ctx, func() error {
			var err error
			batch, err = ai.EmbedWithModel(ctx, cp.embedder, texts)
			return err
		}, cp.maxRetries, cp.retryBaseDelay)
		if err != nil {
			return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", cp.maxRetries, err)
		}
		if len(batch) != len(texts) {
			return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCount, len(texts), len(batch))
		}
		embeddings = append(embeddings, batch...)
	}

	now := time.Now().UTC()
	updated := make([]*core.Chunk, len(chunks))
	for i, c := range chunks {
		next := *c
		next.Embedding = ai.NormalizeVector(embeddings[i].Vector)
		next.EmbeddingModel = embeddings[i].Model
		next.EmbeddingDimension = embeddings[i].Dimension()
		next.CreatedAt = now
		updated[i] = &next
	}

	if err := cp.docs.ReplaceChunks(ctx, id, updated); err != nil {
		return 0, fmt.Errorf("failed to replace chunks: %w", err)
	}
	return len(updated), nil
}
