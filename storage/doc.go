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


// Package storage provides the storage abstraction layer for folio.
//
// Two collaborators are defined here. A DocumentStore persists documents,
// their processing status and their chunk sets. A FileStore holds the
// original uploaded bytes under opaque keys.
//
// # Constructor Return Type Pattern
//
// Public constructors in the backend packages return the interfaces from
// this package:
//
//	docs, err := badger.NewDocumentStore(backend)   // storage.DocumentStore
//	files, err := files.NewLocalStore("/var/folio") // storage.FileStore
//
// Internal constructors (newDocumentStore, newBlobStore) return concrete
// types for use inside the implementation package.
//
// # Status transitions
//
// ClaimDocument and ResetDocument are the only ways to move a document into
// PROCESSING and back to PENDING. Both are atomic compare-and-set operations:
// of two concurrent claims on one document exactly one succeeds and the
// other gets ErrClaimConflict.
//
// # Chunk sets
//
// ReplaceChunks deletes the previous chunk set and inserts the new one in a
// single transaction. Readers observe either the old set or the new one.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
