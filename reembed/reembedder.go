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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/storage"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per call
	BatchSize int `yaml:"batch_size"`

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int `yaml:"report_interval"`

	// MaxRetries is the maximum number of attempts per embedder call
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Concurrency is the number of documents re-embedded at once
	Concurrency int `yaml:"concurrency"`

	// Force re-embeds documents already embedded by the current model
	Force bool `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Concurrency:    2,
	}
}

// Summary describes a finished run.
type Summary struct {
	Documents int
	Skipped   int
	Chunks    int
	Elapsed   time.Duration
}

// Reembedder re-embeds the chunk sets of every COMPLETED document.
type Reembedder struct {
	docs      storage.DocumentStore
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
	processor *ChunkProcessor
	iterator  *DocumentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(docs storage.DocumentStore, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		docs:      docs,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		logger:    slog.Default().With("component", "reembedder"),
		processor: NewChunkProcessor(docs, embedder, config.BatchSize, config.MaxRetries, config.RetryDelay),
		iterator:  NewDocumentIterator(docs),
	}
}

// Run re-embeds every COMPLETED document. Documents whose chunks already
// carry the embedder's model are skipped unless Config.Force is set. The
// first failure stops the run; documents finished before it keep their new
// vectors.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	docs, err := r.iterator.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	summary := &Summary{}
	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No completed documents found (0 documents)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Re-embedding %d documents with %s (batch size: %d)\n",
		len(docs), r.embedder.Model(), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, "documents", len(docs), r.config.ReportInterval)
	tracker.Start()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.config.Concurrency, 1))

	iterErr := visit(gctx, docs, func(doc *core.Document) error {
		g.Go(func() error {
			defer tracker.Increment(1)

			chunks, err := r.docs.GetChunks(gctx, doc.ID)
			if err != nil {
				return fmt.Errorf("document %s: %w", doc.ID, err)
			}
			if !r.config.Force && r.processor.Current(chunks) {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}

			n, err := r.processor.Process(gctx, doc.ID, chunks)
			if err != nil {
				return fmt.Errorf("document %s: %w", doc.ID, err)
			}
			mu.Lock()
			summary.Documents++
			summary.Chunks += n
			mu.Unlock()
			r.logger.Debug("document re-embedded", "document", doc.ID, "chunks", n)
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	if iterErr != nil {
		return summary, iterErr
	}

	tracker.Finish()
	summary.Elapsed = tracker.Elapsed()

	fmt.Fprintf(r.progress, "Re-embedding complete. %d documents (%d chunks) updated, %d already current, in %v\n",
		summary.Documents, summary.Chunks, summary.Skipped, summary.Elapsed.Round(time.Millisecond))

	return summary, nil
}
