package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to the database named by FOLIO_TEST_POSTGRES_DSN
// and starts from empty tables.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FOLIO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FOLIO_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: dsn, AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE chunks, documents`)
	require.NoError(t, err)
	return s
}

func newDoc(t *testing.T, s *Store) *core.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), &core.Document{
		FileKey:  "uploads/" + core.NewID().String(),
		FileName: "paper.pdf",
	})
	require.NoError(t, err)
	return doc
}

func chunkSet(docID core.ID, vectors ...[]float32) []*core.Chunk {
	chunks := make([]*core.Chunk, len(vectors))
	for i, v := range vectors {
		page := i + 1
		content := fmt.Sprintf("chunk %d", i)
		chunks[i] = &core.Chunk{
			ID:                 core.ChunkID(docID, i),
			DocumentID:         docID,
			Content:            content,
			ContentHash:        core.HashContent([]byte(content)),
			PositionIndex:      i,
			PageNumber:         &page,
			Embedding:          v,
			EmbeddingModel:     "test",
			EmbeddingDimension: len(v),
		}
	}
	return chunks
}

func TestPostgresDocumentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := newDoc(t, s)
	_, err := s.CreateDocument(ctx, doc)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	claimed, err := s.ClaimDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, claimed.Status)

	_, err = s.ClaimDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrClaimConflict)

	meta := core.DocumentMetadata{
		Title:           "Dense Passage Retrieval",
		Authors:         []string{"V. Karpukhin"},
		PageCount:       9,
		TableOfContents: []core.TOCEntry{{Level: 1, Title: "Introduction", Page: 1}},
		Extra:           map[string]string{"producer": "pdfTeX"},
	}
	require.NoError(t, s.UpdateMetadata(ctx, doc.ID, meta))
	require.NoError(t, s.UpdateStatus(ctx, doc.ID, core.StatusCompleted, ""))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, meta.Authors, got.Authors)
	assert.Equal(t, meta.TableOfContents, got.TableOfContents)
	assert.Equal(t, "pdfTeX", got.Metadata["producer"])

	reset, err := s.ResetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, reset.Status)

	listed, err := s.ListDocuments(ctx, core.StatusPending)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = s.GetDocument(ctx, core.NewID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresConcurrentClaims(t *testing.T) {
	s := openTestStore(t)
	doc := newDoc(t, s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ClaimDocument(context.Background(), doc.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgresChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := newDoc(t, s)
	b := newDoc(t, s)

	require.NoError(t, s.ReplaceChunks(ctx, a.ID, chunkSet(a.ID, []float32{1, 0, 0}, []float32{0, 1, 0})))
	require.NoError(t, s.ReplaceChunks(ctx, a.ID, chunkSet(a.ID, []float32{1, 0, 0})))
	require.NoError(t, s.ReplaceChunks(ctx, b.ID, chunkSet(b.ID, []float32{0.8, 0.2, 0})))

	chunks, err := s.GetChunks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].PageNumber)
	assert.Equal(t, 1, *chunks[0].PageNumber)

	matches, err := s.FindSimilarChunks(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, a.ID, matches[0].Chunk.DocumentID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)

	require.NoError(t, s.DeleteDocument(ctx, a.ID))
	chunks, err = s.GetChunks(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.ErrorIs(t, s.DeleteDocument(ctx, a.ID), storage.ErrNotFound)
}
