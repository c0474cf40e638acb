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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/folio/ai"
	"github.com/poiesic/folio/core"
	"github.com/poiesic/folio/parser"
	"github.com/poiesic/folio/splitter"
	"github.com/poiesic/folio/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

// failTimeout bounds the FAILED write after a run has been aborted.
const failTimeout = 30 * time.Second

// Orchestrator runs the ingestion stages for one document at a time.
// It is safe for concurrent use on different documents.
type Orchestrator struct {
	docs     storage.DocumentStore
	files    storage.FileStore
	parser   parser.Parser
	splitter textsplitter.TextSplitter
	embedder ai.Embedder
	overlap  int
	logger   *slog.Logger
	now      func() time.Time
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger.With("component", "orchestrator")
		}
		return nil
	}
}

// WithChunkOverlap tells the orchestrator how much each chunk repeats of the
// previous one, so chunks can be located in the source text.
func WithChunkOverlap(overlap int) Option {
	return func(o *Orchestrator) error {
		if overlap < 0 {
			return fmt.Errorf("chunk overlap must not be negative: %d", overlap)
		}
		o.overlap = overlap
		return nil
	}
}

// WithClock overrides the time source used for chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// NewOrchestrator creates an Orchestrator. All collaborators are required.
func NewOrchestrator(docs storage.DocumentStore, files storage.FileStore, p parser.Parser,
	s textsplitter.TextSplitter, embedder ai.Embedder, opts ...Option) (*Orchestrator, error) {
	switch {
	case docs == nil:
		return nil, ErrDocumentStoreRequired
	case files == nil:
		return nil, ErrFileStoreRequired
	case p == nil:
		return nil, ErrParserRequired
	case s == nil:
		return nil, ErrSplitterRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	}

	o := &Orchestrator{
		docs:     docs,
		files:    files,
		parser:   p,
		splitter: s,
		embedder: embedder,
		logger:   slog.Default().With("component", "orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Process claims the document and runs every stage. A claim conflict or a
// missing document is returned without touching the document. Any later
// failure marks the document FAILED, clears its chunks and is returned as a
// *StageError.
func (o *Orchestrator) Process(ctx context.Context, id core.ID) (err error) {
	doc, err := o.docs.ClaimDocument(ctx, id)
	if err != nil {
		return err
	}

	logger := o.logger.With("document", id)
	logger.Info("processing document", "file", doc.FileName)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StageComplete, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			o.fail(ctx, logger, id, err)
			return
		}
		logger.Info("document completed", "duration", time.Since(started))
	}()

	return o.run(ctx, doc, logger)
}

func (o *Orchestrator) run(ctx context.Context, doc *core.Document, logger *slog.Logger) error {
	data, err := o.resolve(ctx, doc)
	if err != nil {
		return &StageError{Stage: StageResolve, Err: err}
	}

	file := parser.File{Name: doc.FileName, Data: data}
	if file.Name == "" {
		file.Name = doc.FileKey
	}
	result, err := o.parser.Parse(ctx, file)
	if err != nil {
		return &StageError{Stage: StageParse, Err: err}
	}
	if result.Placeholder {
		logger.Warn("parser returned placeholder content", "backend", result.Backend)
	}

	meta := deriveMetadata(result, file)

	texts, pages, err := o.split(result)
	if err != nil {
		return &StageError{Stage: StageSplit, Err: err}
	}
	logger.Debug("document split", "chunks", len(texts))

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}
	embeddings, err := o.embed(ctx, texts)
	if err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}

	chunks := o.buildChunks(doc.ID, texts, pages, embeddings)
	if err := o.docs.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return &StageError{Stage: StagePersist, Err: err}
	}

	if err := o.docs.UpdateMetadata(ctx, doc.ID, meta); err != nil {
		return &StageError{Stage: StageComplete, Err: err}
	}
	if err := o.docs.UpdateStatus(ctx, doc.ID, core.StatusCompleted, ""); err != nil {
		return &StageError{Stage: StageComplete, Err: err}
	}
	return nil
}

func (o *Orchestrator) resolve(ctx context.Context, doc *core.Document) ([]byte, error) {
	if doc.FileKey == "" {
		return nil, storage.ErrFileNotFound
	}
	rc, err := o.files.Resolve(ctx, doc.FileKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc.FileKey, err)
	}
	return data, nil
}

// split returns the non-blank chunks and the 1-based page of each, 0 when
// unknown.
func (o *Orchestrator) split(result *parser.Result) ([]string, []int, error) {
	if strings.TrimSpace(result.Text) == "" {
		return nil, nil, ErrNoChunks
	}
	raw, err := o.splitter.SplitText(result.Text)
	if err != nil {
		return nil, nil, err
	}

	spans := splitter.Locate(result.Text, raw, o.overlap)
	var starts []int
	if len(result.Pages) > 0 {
		starts = splitter.PageStarts(result.Text, result.Pages)
	}

	texts := make([]string, 0, len(raw))
	pages := make([]int, 0, len(raw))
	for i, chunk := range raw {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		texts = append(texts, chunk)
		pages = append(pages, splitter.PageOf(starts, spans[i].Start))
	}
	if len(texts) == 0 {
		return nil, nil, ErrNoChunks
	}
	return texts, pages, nil
}

func (o *Orchestrator) embed(ctx context.Context, texts []string) ([]ai.Embedding, error) {
	embeddings, err := ai.EmbedWithModel(ctx, o.embedder, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorCount, len(embeddings), len(texts))
	}
	return embeddings, nil
}

func (o *Orchestrator) buildChunks(id core.ID, texts []string, pages []int, embeddings []ai.Embedding) []*core.Chunk {
	now := o.now().UTC()
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunk := &core.Chunk{
			ID:                 core.ChunkID(id, i),
			DocumentID:         id,
			Content:            text,
			ContentHash:        core.HashContent([]byte(text)),
			PositionIndex:      i,
			Embedding:          ai.NormalizeVector(embeddings[i].Vector),
			EmbeddingModel:     embeddings[i].Model,
			EmbeddingDimension: embeddings[i].Dimension(),
			CreatedAt:          now,
		}
		if pages[i] > 0 {
			page := pages[i]
			chunk.PageNumber = &page
		}
		chunks[i] = chunk
	}
	return chunks
}

// fail clears the chunk set and records the failure. It runs on a context
// detached from ctx so a cancelled run still leaves PROCESSING.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id core.ID, cause error) {
	logger.Error("document failed", "err", cause)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	if err := o.docs.ReplaceChunks(ctx, id, nil); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("failed to clear chunks", "err", err)
	}
	if err := o.docs.UpdateStatus(ctx, id, core.StatusFailed, cause.Error()); err != nil {
		logger.Error("failed to record failure", "err", err)
	}
}

// deriveMetadata normalizes what the parser found. It never fails.
func deriveMetadata(result *parser.Result, file parser.File) core.DocumentMetadata {
	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = parser.ExtractTitle(result.Text, file.Name)
	}

	authors := make([]string, 0, len(result.Authors))
	for _, a := range result.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	extra := make(map[string]string, len(result.Metadata)+2)
	for k, v := range result.Metadata {
		extra[k] = v
	}
	if result.Backend != "" {
		extra["parser_backend"] = result.Backend
	}
	if result.Placeholder {
		extra["placeholder"] = strconv.FormatBool(true)
	}

	return core.DocumentMetadata{
		Title:           title,
		Authors:         authors,
		Abstract:        strings.TrimSpace(result.Abstract),
		PageCount:       len(result.Pages),
		TableOfContents: result.TableOfContents,
		Extra:           extra,
	}
}
