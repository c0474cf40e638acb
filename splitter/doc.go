// Package splitter cuts long document text into bounded, overlapping chunks.
//
// Every splitter satisfies langchaingo's textsplitter.TextSplitter, so the
// recursive and sentence-aware splitters defined here can be swapped with the
// token splitter from langchaingo without touching callers.
//
// Lengths are measured in runes. A chunk produced before the overlap step
// never exceeds ChunkSize; the overlap step prefixes every chunk but the first
// with the trailing ChunkOverlap runes of its predecessor.
package splitter
