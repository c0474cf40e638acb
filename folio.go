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


package folio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/config"
	"github.com/poiesic/folio/embedding"
	"github.com/poiesic/folio/ingestion"
	"github.com/poiesic/folio/parser"
	"github.com/poiesic/folio/reembed"
	"github.com/poiesic/folio/search"
	"github.com/poiesic/folio/splitter"
	"github.com/poiesic/folio/storage"
	"github.com/poiesic/folio/storage/badger"
	"github.com/poiesic/folio/storage/files"
	"github.com/poiesic/folio/storage/postgres"
	"google.golang.org/api/option"
)

// Folio wires the stores, parser, splitter, embedder and task queue
// described by a config.Config.
type Folio struct {
	cfg          *config.Config
	backend      *badger.Backend
	docs         storage.DocumentStore
	files        storage.FileStore
	parser       parser.Parser
	embedder     ai.Embedder
	orchestrator *ingestion.Orchestrator
	queue        *ingestion.Queue
	logger       *slog.Logger

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	embedder ai.Embedder
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmbedder replaces the configured embedding resolver. The caller keeps
// ownership of embedder.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *options) {
		o.embedder = embedder
	}
}

// Open builds every component named by cfg. On error, whatever was already
// opened is closed again.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Folio, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	f := &Folio{cfg: cfg, logger: o.logger.With("component", "folio")}
	if err := f.open(ctx, o); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (f *Folio) open(ctx context.Context, o *options) error {
	if err := f.openDocuments(ctx, o.logger); err != nil {
		return err
	}
	if err := f.openFiles(ctx); err != nil {
		return err
	}

	p, err := parser.New(parser.Kind(f.cfg.Parser.Kind), parser.Options{
		LayoutURL:     f.cfg.Parser.LayoutURL,
		LayoutWorkers: f.cfg.Parser.LayoutWorkers,
		HTTPClient:    &http.Client{Timeout: f.cfg.Parser.LayoutTimeout},
		Logger:        o.logger,
	})
	if err != nil {
		return fmt.Errorf("parser: %w", err)
	}
	f.parser = p
	if r, ok := p.(interface{ Release() }); ok {
		f.track("parser", func() error { r.Release(); return nil })
	}

	split, err := splitter.New(f.cfg.Splitter)
	if err != nil {
		return fmt.Errorf("splitter: %w", err)
	}

	if o.embedder != nil {
		f.embedder = o.embedder
	} else {
		resolver := embedding.NewResolver(&f.cfg.Embedding, embedding.WithLogger(o.logger))
		f.embedder = resolver
		f.track("embedder", resolver.Close)
	}

	f.orchestrator, err = ingestion.NewOrchestrator(f.docs, f.files, f.parser, split, f.embedder,
		ingestion.WithLogger(o.logger),
		ingestion.WithChunkOverlap(locateOverlap(f.cfg.Splitter)),
	)
	if err != nil {
		return err
	}

	f.queue, err = ingestion.NewQueue(f.orchestrator,
		ingestion.WithPoolSize(f.cfg.Ingestion.PoolSize),
		ingestion.WithJobTimeout(f.cfg.Ingestion.JobTimeout),
		ingestion.WithNonblocking(f.cfg.Ingestion.Nonblocking),
		ingestion.WithQueueLogger(o.logger),
	)
	if err != nil {
		return err
	}
	f.track("queue", func() error { f.queue.Release(); return nil })
	return nil
}

// locateOverlap is the overlap, in runes, that chunk location strips from
// each chunk. Token-strategy overlaps count tokens, so their chunks are
// located by their full text and page numbers are approximate.
func locateOverlap(cfg splitter.Config) int {
	if cfg.Strategy == splitter.StrategyToken {
		return 0
	}
	return cfg.ChunkOverlap
}

func (f *Folio) openDocuments(ctx context.Context, logger *slog.Logger) error {
	switch f.cfg.Storage.Backend {
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, f.cfg.Storage.Postgres, postgres.WithLogger(logger.With("component", "postgres")))
		if err != nil {
			return err
		}
		f.docs = store
		f.track("document store", store.Close)
		return nil
	default:
		backend, err := f.badgerBackend()
		if err != nil {
			return err
		}
		docs, err := badger.NewDocumentStore(backend, badger.WithLogger(logger.With("component", "badger-documents")))
		if err != nil {
			return err
		}
		f.docs = docs
		f.track("document store", docs.Close)
		return nil
	}
}

func (f *Folio) openFiles(ctx context.Context) error {
	switch f.cfg.Files.Backend {
	case config.FilesGCS:
		gcs := f.cfg.Files.GCS
		var clientOpts []option.ClientOption
		if gcs.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(gcs.CredentialsFile))
		}
		store, err := files.NewGCSStore(ctx, gcs.Bucket, gcs.Prefix, clientOpts...)
		if err != nil {
			return err
		}
		f.files = store
		f.track("file store", store.Close)
	case config.FilesBadger:
		backend, err := f.badgerBackend()
		if err != nil {
			return err
		}
		store, err := badger.NewBlobStore(backend)
		if err != nil {
			return err
		}
		f.files = store
	default:
		store, err := files.NewLocalStore(f.cfg.Files.Local.Root)
		if err != nil {
			return err
		}
		f.files = store
	}
	return nil
}

// badgerBackend opens the embedded database once; documents and blobs may
// share it.
func (f *Folio) badgerBackend() (*badger.Backend, error) {
	if f.backend != nil {
		return f.backend, nil
	}
	bc := f.cfg.Storage.Badger
	backend, err := badger.OpenBackend(bc.Path, bc.InMemory)
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}
	f.backend = backend
	f.track("badger backend", backend.Close)
	return backend, nil
}

func (f *Folio) track(name string, fn func() error) {
	f.closers = append(f.closers, namedCloser{name: name, close: fn})
}

// Close waits for queued jobs and releases every component in reverse
// order of opening. The first error is returned; all are logged.
func (f *Folio) Close() error {
	var first error
	for i := len(f.closers) - 1; i >= 0; i-- {
		c := f.closers[i]
		if err := c.close(); err != nil {
			f.logger.Error("error closing "+c.name, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	f.closers = nil
	return first
}

// Migrate creates or upgrades the database schema. The embedded store
// needs none.
func (f *Folio) Migrate(ctx context.Context) error {
	if m, ok := f.docs.(interface{ Migrate(context.Context) error }); ok {
		return m.Migrate(ctx)
	}
	return nil
}

func (f *Folio) Config() *config.Config {
	return f.cfg
}

func (f *Folio) Documents() storage.DocumentStore {
	return f.docs
}

func (f *Folio) Files() storage.FileStore {
	return f.files
}

func (f *Folio) Embedder() ai.Embedder {
	return f.embedder
}

func (f *Folio) Orchestrator() *ingestion.Orchestrator {
	return f.orchestrator
}

func (f *Folio) Queue() *ingestion.Queue {
	return f.queue
}

// NewSearcher returns a searcher using the configured minimum score. opts
// are applied afterwards.
func (f *Folio) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	all := append([]search.Option{
		search.WithLogger(f.logger),
		search.WithMinScore(f.cfg.Search.MinScore),
	}, opts...)
	return search.NewSearcher(f.docs, f.embedder, all...)
}

// NewReembedder returns a re-embedder using the configured batch settings.
// Progress is written to progress, which may be nil.
func (f *Folio) NewReembedder(progress io.Writer) *reembed.Reembedder {
	cfg := f.cfg.Reembed
	return reembed.NewReembedder(f.docs, f.embedder, &cfg, progress)
}
