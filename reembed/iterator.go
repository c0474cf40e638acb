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


package reembed

import (
	"context"

	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

// DefaultBatchSize is the default number of chunks sent to the embedder per call.
const DefaultBatchSize = 100

// DocumentIterator walks every COMPLETED document.
type DocumentIterator struct {
	docs storage.DocumentStore
}

// NewDocumentIterator creates a document iterator.
func NewDocumentIterator(docs storage.DocumentStore) *DocumentIterator {
	return &DocumentIterator{docs: docs}
}

// Documents returns the COMPLETED documents in creation order.
func (it *DocumentIterator) Documents(ctx context.Context) ([]*core.Document, error) {
	return it.docs.ListDocuments(ctx, core.StatusCompleted)
}

// ForEach calls fn for each COMPLETED document. Iteration stops on the first
// error from fn. Context cancellation is checked between documents.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func(*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := it.Documents(ctx)
	if err != nil {
		return err
	}
	return visit(ctx, docs, fn)
}

// visit calls fn for each of docs until fn fails or ctx is done.
func visit(ctx context.Context, docs []*core.Document, fn func(*core.Document) error) error {
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
