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


// Package openai provides the remote embedding backend for OpenAI-compatible APIs.
//
// This package implements ai.Embedder using the langchaingo library to talk
// to OpenAI or OpenAI-compatible services (such as Ollama, LocalAI, or vLLM).
// Responses are reordered by each item's index before langchaingo reads them,
// so vectors always line up with their inputs.
//
// # Usage
//
//	embedder, err := openai.NewEmbedder(ai.RemoteConfig{
//	    Host:  "http://localhost:11434",  // /v1 added automatically
//	    Model: "nomic-embed-text",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, chunks)
package openai
