package ai_test

import (
	"context"
	"testing"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type twoModels struct {
	*mock.MockEmbedder
}

func (e twoModels) EmbedTagged(_ context.Context, texts []string) ([]ai.Embedding, error) {
	out := make([]ai.Embedding, len(texts))
	for i := range texts {
		out[i] = ai.Embedding{Vector: []float32{1, 0}, Model: "fallback"}
	}
	return out, nil
}

func TestEmbedWithModel(t *testing.T) {
	ctx := context.Background()

	t.Run("plain embedder uses Model", func(t *testing.T) {
		e := mock.NewMockEmbedder().WithDimension(3).WithModel("nomic")
		out, err := ai.EmbedWithModel(ctx, e, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "nomic", out[1].Model)
		assert.Equal(t, 3, out[0].Dimension())
	})

	t.Run("tagged embedder reports its own models", func(t *testing.T) {
		out, err := ai.EmbedWithModel(ctx, twoModels{mock.NewMockEmbedder()}, []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, "fallback", out[0].Model)
	})

	t.Run("errors pass through", func(t *testing.T) {
		_, err := ai.EmbedWithModel(ctx, mock.NewMockEmbedder().FailAlways(), []string{"a"})
		assert.ErrorIs(t, err, mock.ErrInjected)
	})
}
