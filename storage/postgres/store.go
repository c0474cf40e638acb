package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

const uniqueViolation = "23505"

const documentColumns = `id, status, title, authors, abstract, page_count, table_of_contents,
	file_key, file_name, file_digest, error_message, metadata, created_at, updated_at`

const chunkColumns = `id, document_id, position_index, content, content_hash, page_number,
	embedding, embedding_model, embedding_dimension, created_at`

// Config holds connection settings.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string `yaml:"dsn"`

	// Dimension fixes the width of the embedding column. Zero leaves it
	// unconstrained.
	Dimension int `yaml:"dimension"`

	// MaxConns bounds the pool. Zero keeps the pgxpool default.
	MaxConns int32 `yaml:"max_conns"`

	// AutoMigrate runs Migrate when the store opens.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// Store implements storage.DocumentStore on a pgx connection pool.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to PostgreSQL. The vector extension is created first so the
// pgvector codecs can be registered on every pooled connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if err := ensureExtension(ctx, poolCfg.ConnConfig); err != nil {
		return nil, err
	}
	poolCfg.AfterConnect = pgxvec.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{
		pool:      pool,
		dimension: cfg.Dimension,
		logger:    slog.Default().With("component", "postgres"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewDocumentStore opens a Store and returns it as a storage.DocumentStore.
func NewDocumentStore(ctx context.Context, cfg Config, opts ...Option) (storage.DocumentStore, error) {
	return Open(ctx, cfg, opts...)
}

func ensureExtension(ctx context.Context, connCfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("postgres: create vector extension: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
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

	authors, toc, metadata, err := encodeDocumentJSON(&created)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		created.ID, string(created.Status), created.Title, authors, created.Abstract,
		created.PageCount, toc, created.FileKey, created.FileName, created.FileDigest,
		created.ErrorMessage, metadata, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, created.ID)
		}
		return nil, err
	}
	return &created, nil
}

// GetDocument selects one document row.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return doc, err
}

// ListDocuments selects documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context, statuses ...core.Status) ([]*core.Document, error) {
	filter := make([]string, len(statuses))
	for i, st := range statuses {
		filter[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at, id`, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ClaimDocument is a conditional UPDATE from PENDING or FAILED to PROCESSING.
func (s *Store) ClaimDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return s.transition(ctx, id, core.StatusProcessing, core.StatusPending, core.StatusFailed)
}

// ResetDocument is a conditional UPDATE from COMPLETED or FAILED to PENDING.
func (s *Store) ResetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return s.transition(ctx, id, core.StatusPending, core.StatusCompleted, core.StatusFailed)
}

func (s *Store) transition(ctx context.Context, id core.ID, to core.Status, from ...core.Status) (*core.Document, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	row := s.pool.QueryRow(ctx, `UPDATE documents
		SET status = $2, error_message = '', updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+documentColumns, id, string(to), s.now(), allowed)
	doc, err := scanDocument(row)
	if err == nil {
		s.logger.Debug("document status changed", "id", id, "status", to)
		return doc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: document %s is %s", storage.ErrClaimConflict, id, current.Status)
}

// UpdateStatus sets the status; the error message is kept only for FAILED.
func (s *Store) UpdateStatus(ctx context.Context, id core.ID, status core.Status, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	if status == core.StatusFailed && errorMessage == "" {
		errorMessage = "processing failed"
	}
	if status != core.StatusFailed {
		errorMessage = ""
	}

	tag, err := s.pool.Exec(ctx, `UPDATE documents SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), errorMessage, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return nil
}

// UpdateMetadata overwrites the derived metadata columns.
func (s *Store) UpdateMetadata(ctx context.Context, id core.ID, meta core.DocumentMetadata) error {
	var doc core.Document
	storage.ApplyMetadata(&doc, meta)
	authors, toc, metadata, err := encodeDocumentJSON(&doc)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `UPDATE documents
		SET title = $2, authors = $3, abstract = $4, page_count = $5,
		    table_of_contents = $6, metadata = $7, updated_at = $8
		WHERE id = $1`,
		id, doc.Title, authors, doc.Abstract, doc.PageCount, toc, metadata, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return nil
}

// ReplaceChunks deletes and re-inserts the chunk set inside one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, id core.ID, chunks []*core.Chunk) error {
	if err := core.ValidateChunkSet(id, chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return err
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = s.now()
			}
			batch.Queue(`INSERT INTO chunks (`+chunkColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				c.ID, c.DocumentID, c.PositionIndex, c.Content, c.ContentHash, c.PageNumber,
				pgvector.NewVector(c.Embedding), c.EmbeddingModel, c.EmbeddingDimension, createdAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Debug("replaced chunk set", "id", id, "chunks", len(chunks))
	return nil
}

// GetChunks selects the chunk set ordered by position.
func (s *Store) GetChunks(ctx context.Context, id core.ID) ([]*core.Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = $1 ORDER BY position_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// FindSimilarChunks orders chunks of matching dimension by cosine distance.
func (s *Store) FindSimilarChunks(ctx context.Context, vector []float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: limit %d, vector length %d", storage.ErrInvalidQuery, limit, len(vector))
	}

	query := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+`, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding_dimension = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, query, len(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*core.ChunkMatch
	for rows.Next() {
		var (
			chunk core.Chunk
			emb   pgvector.Vector
			score float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.PositionIndex, &chunk.Content,
			&chunk.ContentHash, &chunk.PageNumber, &emb, &chunk.EmbeddingModel,
			&chunk.EmbeddingDimension, &chunk.CreatedAt, &score); err != nil {
			return nil, err
		}
		chunk.Embedding = emb.Slice()
		matches = append(matches, &core.ChunkMatch{Chunk: &chunk, Score: float32(score)})
	}
	return matches, rows.Err()
}

// DeleteDocument removes the document; chunks follow through ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return nil
}

func encodeDocumentJSON(doc *core.Document) (authors, toc, metadata []byte, err error) {
	a := doc.Authors
	if a == nil {
		a = []string{}
	}
	t := doc.TableOfContents
	if t == nil {
		t = []core.TOCEntry{}
	}
	m := doc.Metadata
	if m == nil {
		m = map[string]string{}
	}

	if authors, err = json.Marshal(a); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: authors: %w", storage.ErrSerializationFailed, err)
	}
	if toc, err = json.Marshal(t); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: table of contents: %w", storage.ErrSerializationFailed, err)
	}
	if metadata, err = json.Marshal(m); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	return authors, toc, metadata, nil
}

func scanDocument(row pgx.Row) (*core.Document, error) {
	var doc core.Document
	var status string
	var authors, toc, metadata []byte
	err := row.Scan(&doc.ID, &status, &doc.Title, &authors, &doc.Abstract, &doc.PageCount, &toc,
		&doc.FileKey, &doc.FileName, &doc.FileDigest, &doc.ErrorMessage, &metadata,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = core.Status(status)

	if err := json.Unmarshal(authors, &doc.Authors); err != nil {
		return nil, fmt.Errorf("%w: authors: %w", storage.ErrSerializationFailed, err)
	}
	if err := json.Unmarshal(toc, &doc.TableOfContents); err != nil {
		return nil, fmt.Errorf("%w: table of contents: %w", storage.ErrSerializationFailed, err)
	}
	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	return &doc, nil
}

func scanChunk(row pgx.Row) (*core.Chunk, error) {
	var (
		chunk core.Chunk
		emb   pgvector.Vector
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.PositionIndex, &chunk.Content,
		&chunk.ContentHash, &chunk.PageNumber, &emb, &chunk.EmbeddingModel,
		&chunk.EmbeddingDimension, &chunk.CreatedAt)
	if err != nil {
		return nil, err
	}
	chunk.Embedding = emb.Slice()
	return &chunk, nil
}
