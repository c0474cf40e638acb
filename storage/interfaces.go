package storage

import (
	"context"
	"io"

	"github.com/poiesic/folio/core"
)

// DocumentStore persists documents and their chunk sets.
// Implementations must be thread-safe and support concurrent access.
type DocumentStore interface {
	// CreateDocument stores a new document. A zero ID is replaced with a
	// fresh one; CreatedAt and UpdatedAt are set. Returns ErrDuplicateKey if
	// the ID already exists.
	CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns documents ordered by creation time, optionally
	// restricted to the given statuses.
	ListDocuments(ctx context.Context, statuses ...core.Status) ([]*core.Document, error)

	// ClaimDocument atomically moves a PENDING or FAILED document to
	// PROCESSING and clears its error message. Returns ErrClaimConflict if
	// the document is in any other state.
	ClaimDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ResetDocument atomically moves a COMPLETED or FAILED document back to
	// PENDING. Returns ErrClaimConflict if the document is PENDING or
	// PROCESSING.
	ResetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// UpdateStatus sets the status. errorMessage is stored only for FAILED
	// and cleared otherwise.
	UpdateStatus(ctx context.Context, id core.ID, status core.Status, errorMessage string) error

	// UpdateMetadata overwrites title, authors, abstract, page count, table
	// of contents and extra metadata.
	UpdateMetadata(ctx context.Context, id core.ID, meta core.DocumentMetadata) error

	// ReplaceChunks deletes the document's chunk set and inserts chunks in
	// one transaction.
	ReplaceChunks(ctx context.Context, id core.ID, chunks []*core.Chunk) error

	// GetChunks returns the chunk set ordered by position.
	GetChunks(ctx context.Context, id core.ID) ([]*core.Chunk, error)

	// FindSimilarChunks returns up to limit chunks ordered by cosine
	// similarity to vector, highest first. Chunks whose dimension differs
	// from len(vector) are skipped.
	FindSimilarChunks(ctx context.Context, vector []float32, limit int) ([]*core.ChunkMatch, error)

	// DeleteDocument removes the document and its chunks together.
	DeleteDocument(ctx context.Context, id core.ID) error

	// Close releases resources.
	Close() error
}

// FileStore holds uploaded file bytes under opaque keys.
type FileStore interface {
	// Put stores the contents of r under key, replacing any previous object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Resolve opens the object stored under key. Returns ErrFileNotFound if
	// there is none. The caller closes the reader.
	Resolve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
