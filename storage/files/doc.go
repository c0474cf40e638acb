// Package files provides storage.FileStore implementations for uploaded
// source documents: a local directory and a Google Cloud Storage bucket.
// The badger package offers a third one that keeps files in the database.
package files
