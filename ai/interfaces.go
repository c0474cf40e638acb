package ai

import "context"

// Backend names accepted in Config.Backend.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// The returned slice contains one vector per input, in input order.
	// Returns an error if any embedding generation fails; partial results
	// are never returned.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the vector length produced by the embedder.
	// Zero means the dimension is not known until the first call.
	Dimension() int

	// Model identifies the model that produces the vectors.
	Model() string
}

// Embedding is a vector tagged with the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}

// Dimension is the vector length.
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// TaggedEmbedder is implemented by embedders that can serve a request from
// more than one model and report which one answered.
type TaggedEmbedder interface {
	Embedder
	EmbedTagged(ctx context.Context, texts []string) ([]Embedding, error)
}

// EmbedWithModel embeds texts with e and tags each vector with the model
// that produced it. TaggedEmbedders report per-vector models; any other
// embedder tags every vector with its Model.
func EmbedWithModel(ctx context.Context, e Embedder, texts []string) ([]Embedding, error) {
	if tagged, ok := e.(TaggedEmbedder); ok {
		return tagged.EmbedTagged(ctx, texts)
	}

	vectors, err := e.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	model := e.Model()
	out := make([]Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = Embedding{Vector: v, Model: model}
	}
	return out, nil
}
