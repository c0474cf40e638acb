// Package postgres implements storage.DocumentStore on PostgreSQL with the
// pgvector extension.
//
// Chunks live in a table with a vector column; similarity search runs in the
// database using the cosine distance operator (<=>). Status transitions are
// single conditional UPDATE statements, so concurrent workers can claim
// documents without advisory locks.
package postgres
