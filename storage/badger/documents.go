package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend *Backend
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DocumentStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) {
		if now != nil {
			s.now = now
		}
	}
}

func newDocumentStore(backend *Backend, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-documents"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDocumentStore creates a DocumentStore on backend. The caller keeps
// ownership of backend and closes it after the store.
func NewDocumentStore(backend *Backend, opts ...Option) (storage.DocumentStore, error) {
	if backend == nil {
		return nil, errors.New("badger: backend is required")
	}
	return newDocumentStore(backend, opts...), nil
}

// Close is a no-op; the backend is closed by its owner.
func (s *DocumentStore) Close() error {
	return nil
}

// CreateDocument stores a new document.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", core.ErrInvalidDocument)
	}

	created := *doc
	if created.ID == core.NilID {
		created.ID = core.NewID()
	}
	if created.Status == "" {
		created.Status = core.StatusPending
	}
	if err := core.ValidateDocument(&created); err != nil {
		return nil, err
	}
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(created.ID)
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, created.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := writeDocument(tx, &created); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	}, false)
	return doc, err
}

// ListDocuments returns documents ordered by creation time.
func (s *DocumentStore) ListDocuments(ctx context.Context, statuses ...core.Status) ([]*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(statuses) > 0 && !slices.Contains(statuses, doc.Status) {
				continue
			}
			docs = append(docs, doc)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return docs, nil
}

// ClaimDocument moves a PENDING or FAILED document to PROCESSING.
func (s *DocumentStore) ClaimDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return s.transition(ctx, id, core.StatusProcessing, core.Status.Claimable)
}

// ResetDocument moves a COMPLETED or FAILED document to PENDING.
func (s *DocumentStore) ResetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return s.transition(ctx, id, core.StatusPending, core.Status.Retriggerable)
}

// transition is a compare-and-set on the document status. Badger detects a
// concurrent write to the same key at commit time and returns ErrConflict.
func (s *DocumentStore) transition(ctx context.Context, id core.ID, to core.Status, allowed func(core.Status) bool) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if !allowed(current.Status) {
			return fmt.Errorf("%w: document %s is %s", storage.ErrClaimConflict, id, current.Status)
		}

		current.Status = to
		current.ErrorMessage = ""
		current.UpdatedAt = s.now()
		if err := writeDocument(tx, current); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return fmt.Errorf("%w: document %s: %w", storage.ErrClaimConflict, id, err)
			}
			return err
		}
		doc = current
		return nil
	}, true)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("document status changed", "id", id, "status", to)
	return doc, nil
}

// UpdateStatus sets the status and error message.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id core.ID, status core.Status, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	if status == core.StatusFailed && errorMessage == "" {
		errorMessage = "processing failed"
	}
	if status != core.StatusFailed {
		errorMessage = ""
	}

	return s.update(ctx, id, func(doc *core.Document) {
		doc.Status = status
		doc.ErrorMessage = errorMessage
	})
}

// UpdateMetadata overwrites the document's derived metadata.
func (s *DocumentStore) UpdateMetadata(ctx context.Context, id core.ID, meta core.DocumentMetadata) error {
	return s.update(ctx, id, func(doc *core.Document) {
		storage.ApplyMetadata(doc, meta)
	})
}

func (s *DocumentStore) update(ctx context.Context, id core.ID, mutate func(*core.Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		mutate(doc)
		doc.UpdatedAt = s.now()
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ReplaceChunks deletes the document's chunk set and writes chunks in one
// transaction.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, id core.ID, chunks []*core.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := core.ValidateChunkSet(id, chunks); err != nil {
		return err
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readDocument(tx, id); err != nil {
			return err
		}
		for _, key := range keysWithPrefix(tx, makeChunkPrefix(id)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for _, chunk := range chunks {
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(makeChunkKey(id, chunk.PositionIndex), value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	s.logger.Debug("replaced chunk set", "id", id, "chunks", len(chunks))
	return nil
}

// GetChunks returns the chunk set ordered by position.
func (s *DocumentStore) GetChunks(ctx context.Context, id core.ID) ([]*core.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanChunks(tx, makeChunkPrefix(id), func(chunk *core.Chunk) {
			chunks = append(chunks, chunk)
		})
	}, false)
	return chunks, err
}

// FindSimilarChunks scores every stored chunk against vector.
func (s *DocumentStore) FindSimilarChunks(ctx context.Context, vector []float32, limit int) ([]*core.ChunkMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: limit %d, vector length %d", storage.ErrInvalidQuery, limit, len(vector))
	}

	var matches []*core.ChunkMatch
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanChunks(tx, []byte(chunkPrefix), func(chunk *core.Chunk) {
			if len(chunk.Embedding) != len(vector) {
				return
			}
			matches = append(matches, &core.ChunkMatch{
				Chunk: chunk,
				Score: ai.CosineSimilarity(vector, chunk.Embedding),
			})
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(matches, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteDocument removes the document and its chunks in one transaction.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readDocument(tx, id); err != nil {
			return err
		}
		for _, key := range keysWithPrefix(tx, makeChunkPrefix(id)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.ID), value)
}

func scanChunks(tx *badger.Txn, prefix []byte, fn func(*core.Chunk)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var chunk *core.Chunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		fn(chunk)
	}
	return nil
}
