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


package core

import (
	"fmt"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Status must be a known value
//   - FileKey must not be empty
//   - ErrorMessage is set iff Status is FAILED
//
// NOT validated (populated by the pipeline):
//   - Title, Authors, Abstract, TableOfContents
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if !doc.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidStatus, doc.Status)
	}

	if doc.FileKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingFile)
	}

	if doc.Status == StatusFailed && doc.ErrorMessage == "" {
		return fmt.Errorf("%w: failed document needs an error message", ErrInvalidDocument)
	}
	if doc.Status != StatusFailed && doc.ErrorMessage != "" {
		return fmt.Errorf("%w: error message set on %s document", ErrInvalidDocument, doc.Status)
	}

	return nil
}

// ValidateChunk validates a single Chunk.
//
// Validation rules:
//   - Content must not be empty
//   - DocumentID must be set
//   - PositionIndex must be >= 0
//   - len(Embedding) must equal EmbeddingDimension
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.DocumentID == NilID {
		return fmt.Errorf("%w: document id is required", ErrInvalidChunk)
	}

	if chunk.PositionIndex < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidChunk, chunk.PositionIndex)
	}

	if len(chunk.Embedding) != chunk.EmbeddingDimension {
		return fmt.Errorf("%w: %w: len=%d dimension=%d",
			ErrInvalidChunk, ErrDimensionMismatch, len(chunk.Embedding), chunk.EmbeddingDimension)
	}

	return nil
}

// ValidateChunkSet validates a complete chunk set for one document.
// Every chunk must be valid, belong to documentID, share one embedding
// dimension, and positions must be exactly 0..len(chunks)-1 in order.
func ValidateChunkSet(documentID ID, chunks []*Chunk) error {
	for i, chunk := range chunks {
		if err := ValidateChunk(chunk); err != nil {
			return err
		}
		if i > 0 && chunk.EmbeddingDimension != chunks[0].EmbeddingDimension {
			return fmt.Errorf("%w: %w: chunk %d has %d, chunk 0 has %d",
				ErrInvalidChunk, ErrDimensionMismatch, i, chunk.EmbeddingDimension, chunks[0].EmbeddingDimension)
		}
		if chunk.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %d belongs to %s", ErrInvalidChunk, i, chunk.DocumentID)
		}
		if chunk.PositionIndex != i {
			return fmt.Errorf("%w: %w: expected %d, got %d",
				ErrInvalidChunk, ErrNonContiguousPositions, i, chunk.PositionIndex)
		}
	}
	return nil
}

// ValidateTransition checks that moving a document from one status to another
// is allowed by the processing state machine.
//
//	PENDING    -> PROCESSING
//	FAILED     -> PROCESSING | PENDING
//	COMPLETED  -> PENDING
//	PROCESSING -> COMPLETED | FAILED
func ValidateTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	ok := false
	switch to {
	case StatusProcessing:
		ok = from.Claimable()
	case StatusPending:
		ok = from.Retriggerable()
	case StatusCompleted, StatusFailed:
		ok = from == StatusProcessing
	}

	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
