// Package embedding resolves which backend embeds a request.
//
// A Resolver holds up to two ai.Embedder slots. The primary is built from
// ai.Config.Backend; when that is not the remote backend, a remote fallback
// is built from ai.Config.Fallback. Each call tries the primary and then the
// fallback. Batches are cut into sub-batches that run one after another, and
// a sub-batch that fails on both backends fails the whole call with no
// partial result.
package embedding
