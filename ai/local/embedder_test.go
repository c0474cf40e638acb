package local

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/folio/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// hashEncoder derives an unnormalized vector from the text. When gate is set,
// Embed waits for it to close.
type hashEncoder struct {
	gate    chan struct{}
	started atomic.Int32
	lengths chan int
	closed  atomic.Bool
	err     error
}

func (h *hashEncoder) Embed(text string, maxLength int) ([]float32, error) {
	h.started.Add(1)
	if h.lengths != nil {
		h.lengths <- maxLength
	}
	if h.gate != nil {
		<-h.gate
	}
	if h.err != nil {
		return nil, h.err
	}
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()
	vector := make([]float32, testDim)
	for i := range vector {
		vector[i] = float32(math.Sin(float64(seed%1000)+float64(i))) * 3
	}
	return vector, nil
}

func (h *hashEncoder) Name() string   { return "test-encoder" }
func (h *hashEncoder) Dimension() int { return testDim }
func (h *hashEncoder) MaxLength() int { return 32 }
func (h *hashEncoder) Close() error   { h.closed.Store(true); return nil }

func newTestEmbedder(t *testing.T, enc *hashEncoder, opts ...Option) *Embedder {
	t.Helper()
	e, err := withEncoder(enc, ai.LocalConfig{Workers: 2}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbedTextUnitLength(t *testing.T) {
	e := newTestEmbedder(t, &hashEncoder{})

	vector, err := e.EmbedText(context.Background(), "the theory of everything")
	require.NoError(t, err)
	assert.Len(t, vector, testDim)
	assert.InDelta(t, 1.0, magnitude(vector), 1e-5)
	assert.Equal(t, testDim, e.Dimension())
	assert.Equal(t, "test-encoder", e.Model())
}

func TestEmbedTextDeterministic(t *testing.T) {
	e := newTestEmbedder(t, &hashEncoder{})

	a, err := e.EmbedText(context.Background(), "graph neural networks")
	require.NoError(t, err)
	b, err := e.EmbedText(context.Background(), "graph neural networks")
	require.NoError(t, err)
	c, err := e.EmbedText(context.Background(), "protein folding")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEmbedTextMaxLength(t *testing.T) {
	t.Run("model default", func(t *testing.T) {
		enc := &hashEncoder{lengths: make(chan int, 1)}
		e := newTestEmbedder(t, enc)

		_, err := e.EmbedText(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, 32, <-enc.lengths)
	})

	t.Run("override", func(t *testing.T) {
		enc := &hashEncoder{lengths: make(chan int, 1)}
		e := newTestEmbedder(t, enc, WithMaxLength(8))

		_, err := e.EmbedText(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, 8, <-enc.lengths)
	})
}

func TestEmbedTextInferenceError(t *testing.T) {
	boom := errors.New("session failed")
	e := newTestEmbedder(t, &hashEncoder{err: boom})

	_, err := e.EmbedText(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	_, err = e.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, boom)
}

func TestEmbedTextsPreservesOrder(t *testing.T) {
	e := newTestEmbedder(t, &hashEncoder{})
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	batch, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.EmbedText(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "text %d", i)
	}
}

func TestEmbedTextsEmpty(t *testing.T) {
	e := newTestEmbedder(t, &hashEncoder{})

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedTextCancelled(t *testing.T) {
	enc := &hashEncoder{}
	e := newTestEmbedder(t, enc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedText(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	vectors, err := e.EmbedTexts(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, vectors)
	assert.Zero(t, enc.started.Load(), "no inference is submitted for a cancelled context")
}

func TestEmbedTextCancelledWhilePoolBusy(t *testing.T) {
	enc := &hashEncoder{gate: make(chan struct{})}
	e := newTestEmbedder(t, enc, WithWorkers(1))

	busy := make(chan error, 1)
	go func() {
		_, err := e.EmbedText(context.Background(), "holds the only worker")
		busy <- err
	}()
	require.Eventually(t, func() bool { return enc.started.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := e.EmbedText(ctx, "late")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("EmbedText waited for a worker despite a cancelled context")
	}

	close(enc.gate)
	require.NoError(t, <-busy)
}

func TestEmbedAfterClose(t *testing.T) {
	enc := &hashEncoder{}
	e := newTestEmbedder(t, enc)
	require.NoError(t, e.Close())
	assert.True(t, enc.closed.Load(), "Close releases the model")
	require.NoError(t, e.Close(), "second close is a no-op")

	_, err := e.EmbedText(context.Background(), "late")
	assert.ErrorIs(t, err, ErrEmbedderClosed)
}

func TestNewEmbedderMissingModel(t *testing.T) {
	_, err := NewEmbedder(ai.LocalConfig{ModelDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewEmbedderRealModel(t *testing.T) {
	dir, runtime := onnxModel(t)

	e, err := NewEmbedder(ai.LocalConfig{ModelDir: dir, Runtime: runtime, MaxLength: 64, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { e.(*Embedder).Close() })

	vectors, err := e.EmbedTexts(context.Background(), []string{"sparse attention", "protein folding"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.Len(t, v, e.Dimension())
		assert.InDelta(t, 1.0, magnitude(v), 1e-4)
	}
}
