package badger

import (
	"encoding/binary"

	"github.com/poiesic/folio/core"
)

// Key prefixes for different data types
const (
	documentPrefix = "doc:"
	chunkPrefix    = "chunk:"
	blobPrefix     = "blob:"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(documentPrefix + id.String())
}

// makeChunkPrefix generates the prefix shared by every chunk of a document.
// Format: chunk:documentID:
func makeChunkPrefix(documentID core.ID) []byte {
	return []byte(chunkPrefix + documentID.String() + ":")
}

// makeChunkKey generates a key for a chunk.
// Format: chunk:documentID:position
func makeChunkKey(documentID core.ID, position int) []byte {
	prefix := makeChunkPrefix(documentID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort follows position
	binary.BigEndian.PutUint64(buf[offset:], uint64(position))
	return buf
}

// makeBlobKey generates a key for a stored file.
func makeBlobKey(key string) []byte {
	return []byte(blobPrefix + key)
}
