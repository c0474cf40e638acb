package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/folio/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	content *PDFContent
	err     error
	calls   int
}

func (f *fakeEngine) Extract(ctx context.Context, data []byte) (*PDFContent, error) {
	f.calls++
	return f.content, f.err
}

func TestStructuralPlainText(t *testing.T) {
	p := NewStructuralParser()
	text := "Efficient Retrieval With Sparse Embeddings\nAuthors: Ann Lee, Bo Chen\nAbstract\nWe index things.\n\nBody one.\fBody two.\fBody three."

	result, err := p.Parse(context.Background(), File{Name: "sparse.txt", Data: []byte(text)})
	require.NoError(t, err)

	assert.Equal(t, BackendStructural, result.Backend)
	assert.False(t, result.Placeholder)
	assert.Len(t, result.Pages, 3)
	assert.Equal(t, "Efficient Retrieval With Sparse Embeddings", result.Title)
	assert.Equal(t, []string{"Ann Lee", "Bo Chen"}, result.Authors)
	assert.Equal(t, "We index things.", result.Abstract)
	assert.Equal(t, "text", result.Metadata["format"])
	assert.Equal(t, "3", result.Metadata["page_count"])
	assert.NotContains(t, result.Text, "\f")
}

func TestStructuralPDFUsesEngine(t *testing.T) {
	engine := &fakeEngine{content: &PDFContent{
		Pages: []string{"Page one text", "Page two text"},
		Info: map[string]string{
			"title":    "Engine Title",
			"author":   "X. Author; Y. Author",
			"producer": "LaTeX",
		},
		Outline: []core.TOCEntry{{Level: 1, Title: "Intro", Page: 1}, {Level: 2, Title: "Setup", Page: 2}},
	}}
	p := NewStructuralParser(WithPDFEngine(engine))

	result, err := p.Parse(context.Background(), File{Name: "doc.pdf", Data: []byte("%PDF-1.7\n...")})
	require.NoError(t, err)

	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, "Engine Title", result.Title)
	assert.Equal(t, []string{"X. Author", "Y. Author"}, result.Authors)
	assert.Equal(t, "Page one text\nPage two text", result.Text)
	assert.Equal(t, "LaTeX", result.Metadata["producer"])
	assert.Equal(t, "pdf", result.Metadata["format"])
	assert.Equal(t, "2", result.Metadata["page_count"])
	assert.Len(t, result.TableOfContents, 2)
	assert.Equal(t, "", result.Abstract)
}

func TestStructuralPDFFallsBackToHeuristics(t *testing.T) {
	engine := &fakeEngine{content: &PDFContent{
		Pages: []string{"A Long Enough Paper Title Here\nBy: Solo Writer\n"},
		Info:  map[string]string{},
	}}
	p := NewStructuralParser(WithPDFEngine(engine))

	result, err := p.Parse(context.Background(), File{Name: "x.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, "A Long Enough Paper Title Here", result.Title)
	assert.Equal(t, []string{"Solo Writer"}, result.Authors)
}

func TestStructuralEngineErrorPropagates(t *testing.T) {
	boom := errors.New("xref table broken")
	p := NewStructuralParser(WithPDFEngine(&fakeEngine{err: boom}))

	_, err := p.Parse(context.Background(), File{Name: "bad.pdf", Data: []byte("%PDF-1.4 garbage")})
	assert.ErrorIs(t, err, boom)
}

func TestStructuralPlaceholder(t *testing.T) {
	p := NewStructuralParser(WithPDFEngine(nil))

	result, err := p.Parse(context.Background(), File{Name: "papers/2301.12345.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)

	assert.True(t, result.Placeholder)
	assert.Equal(t, "2301.12345", result.Title)
	assert.Equal(t, []string{"Mock Author"}, result.Authors)
	assert.Equal(t, "This is a mock abstract.", result.Abstract)
	assert.Equal(t, "MockParser", result.Metadata["producer"])
	assert.Equal(t, 10, strings.Count(result.Text, "Placeholder text for papers/2301.12345.pdf"))
	assert.Equal(t, []core.TOCEntry{
		{Level: 1, Title: "Mock Section 1", Page: 1},
		{Level: 1, Title: "Mock Section 2", Page: 2},
	}, result.TableOfContents)

	again, err := p.Parse(context.Background(), File{Name: "papers/2301.12345.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestStructuralEmptyAndInvalid(t *testing.T) {
	p := NewStructuralParser()

	_, err := p.Parse(context.Background(), File{Name: "empty.pdf"})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = p.Parse(context.Background(), File{Name: "bin.dat", Data: []byte{0xff, 0xfe, 0xfd}})
	assert.Error(t, err)
}

func TestStructuralNarrowViews(t *testing.T) {
	p := NewStructuralParser(WithPDFEngine(nil))
	file := File{Name: "views.pdf", Data: []byte("%PDF-1.4")}

	text, err := p.ExtractText(context.Background(), file)
	require.NoError(t, err)
	assert.Contains(t, text, "Placeholder text")

	meta, err := p.ExtractMetadata(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "views", meta.Title)
	assert.Equal(t, []string{"Mock Author"}, meta.Authors)
	assert.Equal(t, "MockParser", meta.Fields["producer"])
}

func TestStructuralCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStructuralParser().Parse(ctx, File{Name: "a.txt", Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
}
