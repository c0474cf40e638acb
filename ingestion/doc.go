// Package ingestion turns stored source files into searchable chunk sets.
//
// The Orchestrator runs one document through seven sequential stages:
//   - resolve the stored bytes from the file store
//   - parse them into text, pages and metadata
//   - derive normalized metadata (never fails)
//   - split the text into chunks
//   - embed every chunk
//   - replace the document's chunk set atomically
//   - write the metadata and mark the document COMPLETED
//
// A document is claimed (PENDING or FAILED to PROCESSING) before the first
// stage. Any stage error short-circuits the run and the document is marked
// FAILED with a "<stage>: <error>" message; it is never left PROCESSING.
//
// The Queue runs Orchestrator.Process on a worker pool and is the entry point
// for uploads (Submit) and re-runs (Retrigger).
package ingestion
