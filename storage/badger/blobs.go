package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/folio/storage"
)

// BlobStore implements storage.FileStore on the same BadgerDB backend as the
// documents, for single-binary deployments.
type BlobStore struct {
	backend *Backend
}

var _ storage.FileStore = (*BlobStore)(nil)

func newBlobStore(backend *Backend) *BlobStore {
	return &BlobStore{backend: backend}
}

// NewBlobStore creates a FileStore on backend.
func NewBlobStore(backend *Backend) (storage.FileStore, error) {
	if backend == nil {
		return nil, errors.New("badger: backend is required")
	}
	return newBlobStore(backend), nil
}

// Put stores the contents of r under key.
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeBlobKey(key), data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Resolve returns the stored bytes for key.
func (s *BlobStore) Resolve(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", storage.ErrFileNotFound, key)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeBlobKey(key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", storage.ErrInvalidKey)
	}
	return nil
}
