// Package mock provides a test double for ai.Embedder.
//
// MockEmbedder returns deterministic unit vectors derived from an FNV hash of
// the input, so equal texts always embed identically. Behavior can be
// replaced through function fields, and failures can be injected to exercise
// fallback paths.
//
// # Usage in Tests
//
//	// Default deterministic behavior
//	embedder := mock.NewMockEmbedder().WithDimension(8)
//	vectors, err := embedder.EmbedTexts(ctx, []string{"a", "b"})
//
//	// Succeed twice, then fail
//	flaky := mock.NewMockEmbedder().FailAfter(2)
//
//	// Check call counts and the batches that were sent
//	count := embedder.CallCount()
//	batches := embedder.Batches()
package mock
