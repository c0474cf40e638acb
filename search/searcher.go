package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
)

const (
	// DefaultMinScore is the lowest cosine similarity a chunk needs to be returned.
	DefaultMinScore float32 = 0.60

	// verbatimBoost is added to chunks containing every significant query word.
	verbatimBoost float32 = 0.3

	// candidateFactor widens the vector query so filtering still leaves maxHits.
	candidateFactor = 3
)

// Result is one ranked chunk and the document it belongs to.
type Result struct {
	Chunk      *core.Chunk
	Document   *core.Document
	Similarity float32
	Score      float32
}

// Searcher ranks chunks against natural-language queries.
type Searcher struct {
	docs     storage.DocumentStore
	embedder ai.Embedder
	minScore float32
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithMinScore sets the similarity threshold. Must be within [-1, 1].
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		if score < -1 || score > 1 {
			return fmt.Errorf("min score out of range: %v", score)
		}
		s.minScore = score
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(docs storage.DocumentStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		docs:     docs,
		embedder: embedder,
		minScore: DefaultMinScore,
		logger:   slog.Default().With("component", "searcher"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar returns up to maxHits chunks relevant to query, best first.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*Result, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor is FindSimilar with callbacks at each step.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		return nil, fmt.Errorf("%w: maxHits must be positive, got %d", storage.ErrInvalidQuery, maxHits)
	}

	monitor.Start(query)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.docs.FindSimilarChunks(ctx, vector, maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(matches)

	documents := make(map[core.ID]*core.Document)
	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		if match.Score < s.minScore {
			monitor.BelowMinScore(match)
			continue
		}

		doc, err := s.document(ctx, documents, match.Chunk.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if doc.Status != core.StatusCompleted {
			monitor.InactiveDocument(doc)
			continue
		}

		result := &Result{
			Chunk:      match.Chunk,
			Document:   doc,
			Similarity: match.Score,
			Score:      match.Score,
		}
		if containsAllQueryWords(match.Chunk.Content, query) {
			result.Score += verbatimBoost
			monitor.VerbatimHit(result)
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}

// document loads and caches a chunk's owner. A document deleted since the
// vector query returns nil.
func (s *Searcher) document(ctx context.Context, cache map[core.ID]*core.Document, id core.ID) (*core.Document, error) {
	if doc, ok := cache[id]; ok {
		return doc, nil
	}
	doc, err := s.docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("chunk owner vanished", "document", id)
		doc, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = doc
	return doc, nil
}
