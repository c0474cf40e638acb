package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/poiesic/folio/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// newEmbeddingServer answers with one vector per input whose first element is
// the input's position. When reverse is set the data array is sent backwards.
func newEmbeddingServer(t *testing.T, reverse bool, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if requests != nil {
			requests.Add(1)
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items := make([]embeddingItem, len(req.Input))
		for i := range req.Input {
			items[i] = embeddingItem{Object: "embedding", Embedding: []float32{float32(i), 1, 0}, Index: i}
		}
		if reverse {
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   items,
			"model":  req.Model,
		})
	}))
}

func TestEmbedderOrdersByIndex(t *testing.T) {
	server := newEmbeddingServer(t, true, nil)
	defer server.Close()

	embedder, err := NewEmbedder(ai.RemoteConfig{Host: server.URL, Model: "test-model", BatchSize: 10})
	require.NoError(t, err)

	vectors, err := embedder.EmbedTexts(t.Context(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Len(t, vectors, 4)

	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}
}

func TestEmbedderBatches(t *testing.T) {
	var requests atomic.Int32
	server := newEmbeddingServer(t, false, &requests)
	defer server.Close()

	embedder, err := NewEmbedder(ai.RemoteConfig{Host: server.URL, Model: "test-model", BatchSize: 2})
	require.NoError(t, err)

	vectors, err := embedder.EmbedTexts(t.Context(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, int32(3), requests.Load())
}

func TestEmbedderInfersDimension(t *testing.T) {
	server := newEmbeddingServer(t, false, nil)
	defer server.Close()

	embedder, err := NewEmbedder(ai.RemoteConfig{Host: server.URL, Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, 0, embedder.Dimension())
	assert.Equal(t, "test-model", embedder.Model())

	vector, err := embedder.EmbedText(t.Context(), "hello")
	require.NoError(t, err)
	assert.Len(t, vector, 3)
	assert.Equal(t, 3, embedder.Dimension())
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	server := newEmbeddingServer(t, false, nil)
	defer server.Close()

	embedder, err := NewEmbedder(ai.RemoteConfig{Host: server.URL, Model: "test-model", Dimension: 768})
	require.NoError(t, err)

	_, err = embedder.EmbedText(t.Context(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 768")
}

func TestEmbedderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded"}}`))
	}))
	defer server.Close()

	embedder, err := NewEmbedder(ai.RemoteConfig{Host: server.URL, Model: "test-model"})
	require.NoError(t, err)

	vectors, err := embedder.EmbedTexts(t.Context(), []string{"a"})
	assert.Error(t, err)
	assert.Nil(t, vectors)
}

func TestNewEmbedderRequiresHostAndModel(t *testing.T) {
	_, err := NewEmbedder(ai.RemoteConfig{Host: "http://localhost:1"})
	assert.Error(t, err)

	_, err = NewEmbedder(ai.RemoteConfig{Model: "m"})
	assert.Error(t, err)
}

func TestSortByIndex(t *testing.T) {
	body := []byte(`{"object":"list","data":[{"index":2,"embedding":[2]},{"index":0,"embedding":[0]},{"index":1,"embedding":[1]}],"model":"m"}`)

	sorted, err := sortByIndex(body)
	require.NoError(t, err)

	var parsed struct {
		Data  []embeddingItem `json:"data"`
		Model string          `json:"model"`
	}
	require.NoError(t, json.Unmarshal(sorted, &parsed))
	require.Len(t, parsed.Data, 3)
	for i, item := range parsed.Data {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, float32(i), item.Embedding[0])
	}
	assert.Equal(t, "m", parsed.Model)
}
