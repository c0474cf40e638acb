package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	folio "github.com/poiesic/folio/storage"
)

// GCSStore keeps files as objects in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	logger *slog.Logger
}

var _ folio.FileStore = (*GCSStore)(nil)

// NewGCSStore opens a client for bucket. Object names are prefix + "/" + key
// when prefix is set. Client options such as credentials or an emulator
// endpoint are passed through.
func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("files: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("files: gcs client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
		logger: slog.Default().With("component", "gcs-files", "bucket", bucket),
	}, nil
}

func (s *GCSStore) objectName(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key", folio.ErrInvalidKey)
	}
	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

// Put uploads r to the object for key.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}

	w := s.bucket.Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write gs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs object %s: %w", name, err)
	}
	s.logger.Debug("stored object", "object", name)
	return nil
}

// Resolve opens a reader on the object for key.
func (s *GCSStore) Resolve(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("failed to open gs object %s: %w", name, err)
	}
	return r, nil
}

// Delete removes the object for key.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(name).Delete(ctx); err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete gs object %s: %w", name, err)
	}
	return nil
}

// Close closes the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func isNotExist(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
