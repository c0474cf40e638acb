package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return newDocumentStore(backend)
}

func createDoc(t *testing.T, s *DocumentStore) *core.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), &core.Document{
		FileKey:  "uploads/" + core.NewID().String(),
		FileName: "paper.pdf",
	})
	require.NoError(t, err)
	return doc
}

func makeChunks(docID core.ID, vectors ...[]float32) []*core.Chunk {
	chunks := make([]*core.Chunk, len(vectors))
	for i, v := range vectors {
		content := fmt.Sprintf("chunk %d", i)
		chunks[i] = &core.Chunk{
			ID:                 core.ChunkID(docID, i),
			DocumentID:         docID,
			Content:            content,
			ContentHash:        core.HashContent([]byte(content)),
			PositionIndex:      i,
			Embedding:          v,
			EmbeddingModel:     "test",
			EmbeddingDimension: len(v),
		}
	}
	return chunks
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := createDoc(t, s)
	assert.NotEqual(t, core.NilID, doc.ID)
	assert.Equal(t, core.StatusPending, doc.Status)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.FileKey, got.FileKey)
	assert.Equal(t, core.StatusPending, got.Status)

	_, err = s.CreateDocument(ctx, doc)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = s.GetDocument(ctx, core.NewID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.CreateDocument(ctx, &core.Document{})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestListDocuments(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	s := newDocumentStore(backend, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()

	first := createDoc(t, s)
	second := createDoc(t, s)
	third := createDoc(t, s)
	_, err = s.ClaimDocument(ctx, second.ID)
	require.NoError(t, err)

	all, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []core.ID{first.ID, second.ID, third.ID}, []core.ID{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.ListDocuments(ctx, core.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	processing, err := s.ListDocuments(ctx, core.StatusProcessing, core.StatusFailed)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, second.ID, processing[0].ID)
}

func TestClaimAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	claimed, err := s.ClaimDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, claimed.Status)

	_, err = s.ClaimDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrClaimConflict, "second claim while processing")

	_, err = s.ResetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrClaimConflict, "reset while processing")

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, core.StatusFailed, "parse: boom"))
	failed, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "parse: boom", failed.ErrorMessage)

	reclaimed, err := s.ClaimDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, reclaimed.ErrorMessage, "claim clears the previous error")

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, core.StatusCompleted, "ignored"))
	completed, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, completed.ErrorMessage)

	_, err = s.ClaimDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrClaimConflict, "completed documents are not claimable")

	reset, err := s.ResetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, reset.Status)

	_, err = s.ClaimDocument(ctx, core.NewID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ClaimDocument(ctx, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, storage.ErrClaimConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}

func TestUpdateStatusFailedNeedsMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, core.StatusFailed, ""))
	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.NoError(t, core.ValidateDocument(got))

	assert.ErrorIs(t, s.UpdateStatus(ctx, doc.ID, "DONE", ""), core.ErrInvalidStatus)
	assert.ErrorIs(t, s.UpdateStatus(ctx, core.NewID(), core.StatusFailed, "x"), storage.ErrNotFound)
}

func TestUpdateMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	meta := core.DocumentMetadata{
		Title:           "Sparse Retrieval",
		Authors:         []string{"A. Author"},
		Abstract:        "We study.",
		PageCount:       12,
		TableOfContents: []core.TOCEntry{{Level: 1, Title: "Intro", Page: 1}},
		Extra:           map[string]string{"producer": "pdfTeX"},
	}
	require.NoError(t, s.UpdateMetadata(ctx, doc.ID, meta))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sparse Retrieval", got.Title)
	assert.Equal(t, 12, got.PageCount)
	assert.Equal(t, meta.TableOfContents, got.TableOfContents)
	assert.Equal(t, "pdfTeX", got.Metadata["producer"])
}

func TestReplaceChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	first := makeChunks(doc.ID, []float32{1, 0}, []float32{0, 1}, []float32{1, 1})
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, first))

	got, err := s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.PositionIndex)
	}

	second := makeChunks(doc.ID, []float32{0.5, 0.5})
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, second))
	got, err = s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1, "previous set is fully replaced")

	bad := makeChunks(doc.ID, []float32{1}, []float32{1})
	bad[1].PositionIndex = 5
	err = s.ReplaceChunks(ctx, doc.ID, bad)
	assert.ErrorIs(t, err, core.ErrNonContiguousPositions)

	got, err = s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed replace leaves the old set")

	other := core.NewID()
	err = s.ReplaceChunks(ctx, other, makeChunks(other, []float32{1}))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManyChunksOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)

	vectors := make([][]float32, 300)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1}
	}
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, makeChunks(doc.ID, vectors...)))

	got, err := s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 300)
	for i, c := range got {
		require.Equal(t, i, c.PositionIndex)
	}
}

func TestFindSimilarChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createDoc(t, s)
	b := createDoc(t, s)
	c := createDoc(t, s)
	require.NoError(t, s.ReplaceChunks(ctx, a.ID, makeChunks(a.ID, []float32{1, 0}, []float32{0, 1})))
	require.NoError(t, s.ReplaceChunks(ctx, b.ID, makeChunks(b.ID, []float32{0.9, 0.1})))
	require.NoError(t, s.ReplaceChunks(ctx, c.ID, makeChunks(c.ID, []float32{1, 0, 0})))

	matches, err := s.FindSimilarChunks(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, a.ID, matches[0].Chunk.DocumentID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, b.ID, matches[1].Chunk.DocumentID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	all, err := s.FindSimilarChunks(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "chunks of another dimension are skipped")

	_, err = s.FindSimilarChunks(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, s)
	keep := createDoc(t, s)

	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, makeChunks(doc.ID, []float32{1})))
	require.NoError(t, s.ReplaceChunks(ctx, keep.ID, makeChunks(keep.ID, []float32{1})))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err := s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	chunks, err := s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	kept, err := s.GetChunks(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), storage.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetDocument(ctx, core.NewID())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ClaimDocument(ctx, core.NewID())
	assert.ErrorIs(t, err, context.Canceled)
}
