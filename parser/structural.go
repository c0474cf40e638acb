package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/folio/core"
)

var pdfMagic = []byte("%PDF-")

// StructuralParser is the fast backend. PDFs go through a PDFEngine; any
// other input is read as UTF-8 text with pages separated by form feeds.
type StructuralParser struct {
	engine PDFEngine
	logger *slog.Logger
}

var _ Parser = (*StructuralParser)(nil)

// StructuralOption configures a StructuralParser.
type StructuralOption func(*StructuralParser)

// WithPDFEngine replaces the PDF engine. A nil engine makes every parse
// return the placeholder result.
func WithPDFEngine(engine PDFEngine) StructuralOption {
	return func(p *StructuralParser) {
		p.engine = engine
	}
}

// WithStructuralLogger sets a custom logger.
func WithStructuralLogger(logger *slog.Logger) StructuralOption {
	return func(p *StructuralParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewStructuralParser returns a StructuralParser using pdfcpu.
func NewStructuralParser(opts ...StructuralOption) *StructuralParser {
	p := &StructuralParser{
		logger: slog.Default().With("component", "structural-parser"),
	}
	p.engine = NewPDFCPUEngine(p.logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns BackendStructural.
func (p *StructuralParser) Name() string { return BackendStructural }

// Available is always true; without an engine the parser degrades to
// placeholder output.
func (p *StructuralParser) Available() bool { return true }

// Parse extracts text, pages, info-dictionary metadata and the outline.
func (p *StructuralParser) Parse(ctx context.Context, file File) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(file.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	if p.engine == nil {
		p.logger.Warn("no PDF engine configured, returning placeholder result", "file", file.Name)
		return placeholderResult(file), nil
	}

	p.logger.Info("parsing document", "file", file.Name, "bytes", len(file.Data))

	var (
		result *Result
		err    error
	)
	if bytes.HasPrefix(file.Data, pdfMagic) {
		result, err = p.parsePDF(ctx, file)
	} else {
		result, err = parsePlainText(file)
	}
	if err != nil {
		p.logger.Error("structural parse failed", "file", file.Name, "err", err)
		return nil, err
	}

	fillFromHeuristics(result, file)
	return result, nil
}

func (p *StructuralParser) parsePDF(ctx context.Context, file File) (*Result, error) {
	content, err := p.engine.Extract(ctx, file.Data)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(strings.Join(content.Pages, "\n"))
	metadata := make(map[string]string, len(content.Info)+2)
	for k, v := range content.Info {
		metadata[k] = v
	}
	metadata["format"] = "pdf"
	metadata["page_count"] = strconv.Itoa(len(content.Pages))

	result := &Result{
		Text:            text,
		Title:           content.Info["title"],
		Metadata:        metadata,
		Pages:           content.Pages,
		TableOfContents: content.Outline,
		Backend:         BackendStructural,
	}
	if author := content.Info["author"]; author != "" {
		result.Authors = SplitAuthors(author)
	}
	return result, nil
}

func parsePlainText(file File) (*Result, error) {
	if !utf8.Valid(file.Data) {
		return nil, fmt.Errorf("%s: not a PDF and not UTF-8 text", file.Name)
	}

	pages := strings.Split(string(file.Data), "\f")
	text := strings.TrimSpace(strings.Join(pages, "\n"))

	return &Result{
		Text:  text,
		Pages: pages,
		Metadata: map[string]string{
			"format":     "text",
			"page_count": strconv.Itoa(len(pages)),
		},
		Backend: BackendStructural,
	}, nil
}

// placeholderResult is deterministic stand-in content, clearly labelled, so
// downstream stages can run without a PDF engine.
func placeholderResult(file File) *Result {
	line := fmt.Sprintf("Placeholder text for %s. No PDF engine is configured, so the real content was not extracted.\n", file.Name)
	text := strings.Repeat(line, 10)

	return &Result{
		Text:     text,
		Title:    file.Stem(),
		Authors:  []string{"Mock Author"},
		Abstract: "This is a mock abstract.",
		Metadata: map[string]string{"producer": "MockParser"},
		Pages:    []string{text},
		TableOfContents: []core.TOCEntry{
			{Level: 1, Title: "Mock Section 1", Page: 1},
			{Level: 1, Title: "Mock Section 2", Page: 2},
		},
		Backend:     BackendStructural,
		Placeholder: true,
	}
}

// ExtractText returns the full text from Parse.
func (p *StructuralParser) ExtractText(ctx context.Context, file File) (string, error) {
	return extractText(ctx, p, file)
}

// ExtractMetadata returns the metadata view of Parse.
func (p *StructuralParser) ExtractMetadata(ctx context.Context, file File) (Metadata, error) {
	return extractMetadata(ctx, p, file)
}
