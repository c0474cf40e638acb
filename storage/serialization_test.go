package storage

import (
	"testing"

	"github.com/poiesic/folio/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPageNumberSurvives(t *testing.T) {
	page := 3
	withPage := &core.Chunk{ID: core.NewID(), DocumentID: core.NewID(), Content: "x", PageNumber: &page}
	withoutPage := &core.Chunk{ID: core.NewID(), DocumentID: core.NewID(), Content: "y"}

	data, err := MarshalChunk(withPage)
	require.NoError(t, err)
	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.PageNumber)
	assert.Equal(t, 3, *decoded.PageNumber)

	data, err = MarshalChunk(withoutPage)
	require.NoError(t, err)
	decoded, err = UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.PageNumber)
}

func TestUnmarshalCorrupt(t *testing.T) {
	_, err := UnmarshalDocument([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalChunk([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestApplyMetadata(t *testing.T) {
	doc := &core.Document{Title: "old"}
	ApplyMetadata(doc, core.DocumentMetadata{
		Title:     "new",
		Authors:   []string{"A"},
		PageCount: 4,
		Extra:     map[string]string{"producer": "pdfTeX"},
	})
	assert.Equal(t, "new", doc.Title)
	assert.Equal(t, []string{"A"}, doc.Authors)
	assert.Equal(t, 4, doc.PageCount)
	assert.Equal(t, "pdfTeX", doc.Metadata["producer"])
}
