// Package reembed rebuilds the embeddings of already ingested documents,
// typically after the embedding model has changed.
//
// Only COMPLETED documents are touched. Each document's chunk set is
// re-embedded and replaced as a whole, so a document never mixes vectors
// from two models. Embedding calls are retried with exponential backoff and
// progress is reported per document.
package reembed
