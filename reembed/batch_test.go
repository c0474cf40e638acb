package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/folio/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	model          string
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func (m *mockEmbedder) Dimension() int { return 3 }

func (m *mockEmbedder) Model() string {
	if m.model == "" {
		return "new-model"
	}
	return m.model
}

func TestChunkProcessor_Process(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	doc := seedDocument(t, docs, 5, "old-model", core.StatusCompleted)
	before, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	var batches []int
	embedder := &mockEmbedder{
		embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			batches = append(batches, len(texts))
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{1.0, 2.0, 2.0}
			}
			return result, nil
		},
	}
	processor := NewChunkProcessor(docs, embedder, 2, 3, 10*time.Millisecond)

	n, err := processor.Process(ctx, doc.ID, before)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, batches, "chunks are embedded in sub-batches")

	after, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, after, 5)

	for i, chunk := range after {
		assert.Equal(t, before[i].ID, chunk.ID)
		assert.Equal(t, before[i].Content, chunk.Content)
		assert.Equal(t, *before[i].PageNumber, *chunk.PageNumber)
		assert.Equal(t, "new-model", chunk.EmbeddingModel)
		assert.Equal(t, 3, chunk.EmbeddingDimension)

		// Verify normalization: magnitude should be ~1.0
		var magnitude float32
		for _, v := range chunk.Embedding {
			magnitude += v * v
		}
		assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
	}
}

func TestChunkProcessor_EmptyChunks(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	processor := NewChunkProcessor(docs, &mockEmbedder{}, 10, 3, 10*time.Millisecond)

	n, err := processor.Process(context.Background(), core.NewID(), nil)
	require.NoError(t, err, "empty chunk set should not error")
	assert.Zero(t, n)
}

func TestChunkProcessor_EmbeddingError(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	doc := seedDocument(t, docs, 2, "old-model", core.StatusCompleted)
	chunks, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			attempts++
			return nil, errors.New("embedding error")
		},
	}
	processor := NewChunkProcessor(docs, embedder, 10, 3, time.Millisecond)

	_, err = processor.Process(ctx, doc.ID, chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding error")
	assert.Equal(t, 3, attempts)

	unchanged, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-model", unchanged[0].EmbeddingModel, "failed run keeps the old chunk set")
}

func TestChunkProcessor_Retry(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	doc := seedDocument(t, docs, 1, "old-model", core.StatusCompleted)
	chunks, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("temporary error")
			}
			return [][]float32{{1.0, 0.0, 0.0}}, nil
		},
	}
	processor := NewChunkProcessor(docs, embedder, 10, 3, 10*time.Millisecond)

	_, err = processor.Process(ctx, doc.ID, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "should retry on failure")
}

func TestChunkProcessor_CountMismatch(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	doc := seedDocument(t, docs, 3, "old-model", core.StatusCompleted)
	chunks, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0, 0}}, nil
		},
	}
	processor := NewChunkProcessor(docs, embedder, 10, 1, time.Millisecond)

	_, err = processor.Process(ctx, doc.ID, chunks)
	assert.ErrorIs(t, err, ErrEmbeddingCount)
}

func TestChunkProcessor_ContextCancellation(t *testing.T) {
	docs, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	doc := seedDocument(t, docs, 1, "old-model", core.StatusCompleted)
	chunks, err := docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			cancel() // Cancel during embedding
			return nil, errors.New("error")
		},
	}
	processor := NewChunkProcessor(docs, embedder, 10, 3, 10*time.Millisecond)

	_, err = processor.Process(ctx, doc.ID, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkProcessor_Current(t *testing.T) {
	processor := NewChunkProcessor(nil, &mockEmbedder{model: "m1"}, 0, 1, 0)
	assert.Equal(t, DefaultBatchSize, processor.batchSize)

	assert.True(t, processor.Current(nil))
	assert.True(t, processor.Current([]*core.Chunk{{EmbeddingModel: "m1"}}))
	assert.False(t, processor.Current([]*core.Chunk{{EmbeddingModel: "m1"}, {EmbeddingModel: "m0"}}))
}
