package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/poiesic/folio/ai"
)

// DefaultDimension is the vector length produced by a MockEmbedder.
const DefaultDimension = 384

// ErrInjected is returned by a MockEmbedder configured to fail.
var ErrInjected = errors.New("mock embedder failure")

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName is reported by Model. Default: "mock-embedder".
	ModelName string

	// Dim is the vector length. Default: DefaultDimension.
	Dim int

	mu        sync.Mutex
	failAfter int
	failing   bool
	callCount atomic.Int64
	batches   [][]string
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{ModelName: "mock-embedder", Dim: DefaultDimension}
}

// WithDimension sets the vector length.
func (m *MockEmbedder) WithDimension(dim int) *MockEmbedder {
	m.Dim = dim
	return m
}

// WithModel sets the reported model name.
func (m *MockEmbedder) WithModel(name string) *MockEmbedder {
	m.ModelName = name
	return m
}

// WithEmbedTextFunc injects EmbedText behavior.
func (m *MockEmbedder) WithEmbedTextFunc(fn func(ctx context.Context, text string) ([]float32, error)) *MockEmbedder {
	m.EmbedTextFunc = fn
	return m
}

// WithEmbedTextsFunc injects EmbedTexts behavior.
func (m *MockEmbedder) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockEmbedder {
	m.EmbedTextsFunc = fn
	return m
}

// FailAlways makes every call return ErrInjected.
func (m *MockEmbedder) FailAlways() *MockEmbedder {
	return m.FailAfter(0)
}

// FailAfter lets n calls succeed and fails every later one with ErrInjected.
func (m *MockEmbedder) FailAfter(n int) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = true
	m.failAfter = n
	return m
}

func (m *MockEmbedder) shouldFail(call int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failing && call > int64(m.failAfter)
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	call := m.callCount.Add(1)
	if m.shouldFail(call) {
		return nil, ErrInjected
	}

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}

	return Vector(text, m.Dimension()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	call := m.callCount.Add(1)
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.shouldFail(call) {
		return nil, ErrInjected
	}

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = Vector(text, m.Dimension())
	}
	return embeddings, nil
}

// Dimension returns the configured vector length.
func (m *MockEmbedder) Dimension() int {
	if m.Dim <= 0 {
		return DefaultDimension
	}
	return m.Dim
}

// Model returns the configured model name.
func (m *MockEmbedder) Model() string {
	if m.ModelName == "" {
		return "mock-embedder"
	}
	return m.ModelName
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Batches returns the inputs of every EmbedTexts call in call order.
func (m *MockEmbedder) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}

// Reset clears the call count, recorded batches and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.batches = nil
	m.failing = false
	m.failAfter = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// Vector creates a deterministic unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return ai.NormalizeVector(vector)
}

var _ ai.Embedder = (*MockEmbedder)(nil)
