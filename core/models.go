package core

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for documents and chunks.
type ID = uuid.UUID

// NilID is the zero ID.
var NilID = uuid.Nil

// NewID returns a fresh random ID.
func NewID() ID {
	return uuid.New()
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// ChunkID derives a deterministic chunk ID from its owning document and position.
// Re-running the pipeline for a document reproduces the same chunk IDs.
func ChunkID(documentID ID, position int) ID {
	return uuid.NewSHA1(documentID, []byte(strconv.Itoa(position)))
}

// HashContent returns a hex encoded BLAKE2b-128 digest of data.
// Identical content always produces identical digests.
func HashContent(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Status is the processing state of a document.
type Status string

const (
	// StatusPending marks a document accepted but not yet claimed by a worker.
	StatusPending Status = "PENDING"
	// StatusProcessing marks a document owned by a running pipeline.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted marks a document whose chunk set is persisted.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed marks a document whose last pipeline run failed.
	StatusFailed Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a pipeline run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Claimable reports whether a worker may move a document in state s to PROCESSING.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusFailed
}

// Retriggerable reports whether a document in state s may be reset to PENDING.
func (s Status) Retriggerable() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// TOCEntry is one line of a document's table of contents.
type TOCEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// Document is a single ingested source file and its derived metadata.
type Document struct {
	ID              ID                `json:"id"`
	Status          Status            `json:"status"`
	Title           string            `json:"title,omitempty"`
	Authors         []string          `json:"authors,omitempty"`
	Abstract        string            `json:"abstract,omitempty"`
	PageCount       int               `json:"page_count,omitempty"`
	TableOfContents []TOCEntry        `json:"table_of_contents,omitempty"`
	FileKey         string            `json:"file_key"`   // File store key of the original bytes
	FileName        string            `json:"file_name"`  // Name as uploaded
	FileDigest      string            `json:"file_digest,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"` // Set iff Status is FAILED
	Metadata        map[string]string `json:"metadata,omitempty"`      // Extra parser metadata (producer, creator, ...)
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DocumentMetadata is the normalized metadata written when a pipeline run completes.
type DocumentMetadata struct {
	Title           string
	Authors         []string
	Abstract        string
	PageCount       int
	TableOfContents []TOCEntry
	Extra           map[string]string
}

// Chunk is one bounded-size slice of a document's text plus its embedding.
type Chunk struct {
	ID                 ID        `json:"id"`
	DocumentID         ID        `json:"document_id"`
	Content            string    `json:"content"`
	ContentHash        string    `json:"content_hash"`
	PositionIndex      int       `json:"position_index"`
	PageNumber         *int      `json:"page_number,omitempty"`
	Embedding          []float32 `json:"embedding"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	CreatedAt          time.Time `json:"created_at"`
}

// ChunkMatch is a chunk returned by a similarity search.
type ChunkMatch struct {
	Chunk *Chunk
	Score float32
}
