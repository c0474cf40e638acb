package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrFileStoreRequired is returned when a file store is not provided.
	ErrFileStoreRequired = errors.New("file store required")

	// ErrParserRequired is returned when a parser is not provided.
	ErrParserRequired = errors.New("parser required")

	// ErrSplitterRequired is returned when a text splitter is not provided.
	ErrSplitterRequired = errors.New("text splitter required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNoChunks is returned when splitting produces no non-blank chunk.
	ErrNoChunks = errors.New("document produced no chunks")

	// ErrVectorCount is returned when the embedder returns a different
	// number of vectors than chunks.
	ErrVectorCount = errors.New("embedding count does not match chunk count")

	// ErrEnqueue is returned when the task queue rejects a document.
	ErrEnqueue = errors.New("enqueue failed")
)
