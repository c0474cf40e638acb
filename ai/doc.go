// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai defines the embedding abstraction used by folio.
//
// Embedder is the single interface every backend implements. Vectors are
// returned in input order and a failed batch never yields partial results.
//
// # Implementation Packages
//
//   - ai/openai: remote backend for OpenAI-compatible embedding APIs
//   - ai/local: ONNX encoder and tokenizer.json run in-process
//   - ai/mock: deterministic test double with injectable failures
//
// The embedding package composes a primary and a fallback Embedder built
// from Config.
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder, local.NewEmbedder) return the
// ai.Embedder interface. The mock constructor returns *mock.MockEmbedder so
// tests can inject behaviour and assert on call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithBackend(ai.BackendRemote),
//	    ai.WithRemote("http://localhost:11434", "nomic-embed-text"),
//	)
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	embedder, err := openai.NewEmbedder(cfg.Remote)
//	vectors, err := embedder.EmbedTexts(ctx, []string{"attention is all you need"})
package ai
