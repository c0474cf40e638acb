package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/ai/mock"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
	"github.com/poiesic/folio/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 16

func setupStore(t *testing.T) storage.DocumentStore {
	t.Helper()
	docs, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		docs.Close()
		backend.Close()
	})
	return docs
}

// seed stores a document with one chunk per text, embedded the way the mock
// embedder embeds queries, and moves it to status.
func seed(t *testing.T, docs storage.DocumentStore, status core.Status, texts ...string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := docs.CreateDocument(ctx, &core.Document{FileKey: "uploads/x.pdf", FileName: "x.pdf"})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			ID:                 core.ChunkID(doc.ID, i),
			DocumentID:         doc.ID,
			Content:            text,
			ContentHash:        core.HashContent([]byte(text)),
			PositionIndex:      i,
			Embedding:          ai.NormalizeVector(mock.Vector(text, testDimension)),
			EmbeddingModel:     "mock-embedder",
			EmbeddingDimension: testDimension,
			CreatedAt:          time.Now(),
		}
	}
	require.NoError(t, docs.ReplaceChunks(ctx, doc.ID, chunks))

	if status != core.StatusPending {
		_, err = docs.ClaimDocument(ctx, doc.ID)
		require.NoError(t, err)
		if status != core.StatusProcessing {
			require.NoError(t, docs.UpdateStatus(ctx, doc.ID, status, ""))
		}
	}
	return doc
}

func newSearcher(t *testing.T, docs storage.DocumentStore, opts ...Option) *Searcher {
	t.Helper()
	s, err := NewSearcher(docs, mock.NewMockEmbedder().WithDimension(testDimension), opts...)
	require.NoError(t, err)
	return s
}

func TestNewSearcher(t *testing.T) {
	docs := setupStore(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(docs, embedder)
		require.NoError(t, err)
		assert.Equal(t, DefaultMinScore, searcher.minScore)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(docs, embedder, WithLogger(nil), WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("min score out of range", func(t *testing.T) {
		_, err := NewSearcher(docs, embedder, WithMinScore(1.5))
		assert.Error(t, err)
	})

	t.Run("nil document store", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrDocumentStoreRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(docs, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestFindSimilar_EmptyStore(t *testing.T) {
	searcher := newSearcher(t, setupStore(t))

	results, err := searcher.FindSimilar(context.Background(), "test query", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_InvalidArguments(t *testing.T) {
	searcher := newSearcher(t, setupStore(t))
	ctx := context.Background()

	_, err := searcher.FindSimilar(ctx, "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = searcher.FindSimilar(ctx, "query", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestFindSimilar_ExactChunkRanksFirst(t *testing.T) {
	docs := setupStore(t)
	target := "Transformers replace recurrence with self-attention"
	doc := seed(t, docs, core.StatusCompleted,
		"Convolutional networks exploit translation invariance",
		target,
		"Gradient boosting builds additive tree ensembles",
	)

	searcher := newSearcher(t, docs, WithMinScore(-1))
	results, err := searcher.FindSimilar(context.Background(), target, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, target, top.Chunk.Content)
	assert.Equal(t, doc.ID, top.Document.ID)
	assert.InDelta(t, 1.0, top.Similarity, 1e-4)
	assert.InDelta(t, 1.0+float64(verbatimBoost), top.Score, 1e-4)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFindSimilar_MinScoreFilters(t *testing.T) {
	docs := setupStore(t)
	target := "Diffusion models denoise samples iteratively"
	seed(t, docs, core.StatusCompleted, target, "Unrelated text about crop rotation in medieval farming")

	searcher := newSearcher(t, docs, WithMinScore(0.99))
	monitor := &testMonitor{}
	results, err := searcher.FindSimilarWithMonitor(context.Background(), target, 10, monitor)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, target, results[0].Chunk.Content)
	assert.Equal(t, 1, monitor.belowMin)
}

func TestFindSimilar_SkipsInactiveDocuments(t *testing.T) {
	docs := setupStore(t)
	text := "Sparse mixtures of experts route tokens to specialists"
	seed(t, docs, core.StatusProcessing, text)
	active := seed(t, docs, core.StatusCompleted, text)

	searcher := newSearcher(t, docs, WithMinScore(0.5))
	monitor := &testMonitor{}
	results, err := searcher.FindSimilarWithMonitor(context.Background(), text, 10, monitor)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, active.ID, results[0].Document.ID)
	assert.Equal(t, 1, monitor.inactive)
}

func TestFindSimilar_WithMaxHits(t *testing.T) {
	docs := setupStore(t)
	for i := 0; i < 5; i++ {
		seed(t, docs, core.StatusCompleted, "Contrastive learning aligns image and text embeddings")
	}

	searcher := newSearcher(t, docs, WithMinScore(0))
	results, err := searcher.FindSimilar(context.Background(), "Contrastive learning aligns image and text embeddings", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindSimilarWithMonitor(t *testing.T) {
	docs := setupStore(t)
	text := "Retrieval augmented generation grounds answers in documents"
	seed(t, docs, core.StatusCompleted, text)

	searcher := newSearcher(t, docs, WithMinScore(0))
	monitor := &testMonitor{}
	results, err := searcher.FindSimilarWithMonitor(context.Background(), "how does retrieval augmented generation ground answers?", 5, monitor)
	require.NoError(t, err)

	assert.True(t, monitor.startCalled)
	assert.True(t, monitor.finishCalled)
	assert.Equal(t, len(results), monitor.finished)
	assert.Equal(t, 1, monitor.semantic)
}

func TestContainsAllQueryWords(t *testing.T) {
	doc := "We propose a retrieval-augmented model that grounds answers in documents."

	assert.False(t, containsAllQueryWords(doc, "How does the model ground answers in documents?"), "inflections do not match")
	assert.True(t, containsAllQueryWords(doc, "What model grounds answers?"))
	assert.True(t, containsAllQueryWords(doc, "Documents, answers."))
	assert.False(t, containsAllQueryWords(doc, "the of and"), "only stop words never match")
	assert.False(t, containsAllQueryWords(doc, "transformer"))
}

type testMonitor struct {
	startCalled  bool
	finishCalled bool
	semantic     int
	belowMin     int
	inactive     int
	verbatim     int
	finished     int
}

func (m *testMonitor) Start(string) { m.startCalled = true }

func (m *testMonitor) AfterSemanticSearch(matches []*core.ChunkMatch) { m.semantic = len(matches) }

func (m *testMonitor) BelowMinScore(*core.ChunkMatch) { m.belowMin++ }

func (m *testMonitor) InactiveDocument(*core.Document) { m.inactive++ }

func (m *testMonitor) VerbatimHit(*Result) { m.verbatim++ }

func (m *testMonitor) Finish(results []*Result) {
	m.finishCalled = true
	m.finished = len(results)
}
