package parser

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/poiesic/folio/core"
)

// Backend names reported in Result.Backend.
const (
	BackendLayout     = "layout"
	BackendStructural = "structural"
)

// File is an uploaded document.
type File struct {
	Name string
	Data []byte
}

// Stem returns the file name without directory or extension.
func (f File) Stem() string {
	base := filepath.Base(f.Name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Result is everything a backend extracted from one file.
type Result struct {
	Text            string
	Title           string
	Authors         []string
	Abstract        string
	Metadata        map[string]string
	Pages           []string
	TableOfContents []core.TOCEntry

	// Backend names the backend that produced the result.
	Backend string

	// Placeholder marks synthetic content produced without a PDF engine.
	Placeholder bool
}

// Metadata is the bibliographic view of a Result.
type Metadata struct {
	Title    string
	Authors  []string
	Abstract string
	Fields   map[string]string
}

// Parser extracts text and metadata from a file.
// Implementations must be safe for concurrent use.
type Parser interface {
	// Name identifies the backend.
	Name() string

	// Available reports whether the backend can currently serve requests.
	Available() bool

	// Parse extracts everything from file. Backend errors are returned
	// unchanged.
	Parse(ctx context.Context, file File) (*Result, error)

	// ExtractText returns only the full text.
	ExtractText(ctx context.Context, file File) (string, error)

	// ExtractMetadata returns only the bibliographic metadata.
	ExtractMetadata(ctx context.Context, file File) (Metadata, error)
}

func extractText(ctx context.Context, p Parser, file File) (string, error) {
	result, err := p.Parse(ctx, file)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func extractMetadata(ctx context.Context, p Parser, file File) (Metadata, error) {
	result, err := p.Parse(ctx, file)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Title:    result.Title,
		Authors:  result.Authors,
		Abstract: result.Abstract,
		Fields:   result.Metadata,
	}, nil
}

// fillFromHeuristics completes the title, authors and abstract a backend
// could not supply.
func fillFromHeuristics(result *Result, file File) {
	if strings.TrimSpace(result.Title) == "" {
		result.Title = ExtractTitle(result.Text, file.Name)
	}
	if len(result.Authors) == 0 {
		result.Authors = ExtractAuthors(result.Text)
	}
	if result.Abstract == "" {
		result.Abstract = ExtractAbstract(result.Text)
	}
	if result.Metadata == nil {
		result.Metadata = map[string]string{}
	}
}
