package parser

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/folio/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePages = []string{
	"Page one text about parsers",
	"Page two text",
	"Page three text",
}

// samplePDF assembles a three-page PDF with an info dictionary and a
// two-level outline: Introduction (p.1) > Background (p.2), Results (p.3).
func samplePDF() []byte {
	objects := []string{
		1: "<< /Type /Catalog /Pages 2 0 R /Outlines 10 0 R /PageMode /UseOutlines >>",
		2: "<< /Type /Pages /Kids [3 0 R 4 0 R 5 0 R] /Count 3 >>",
		6: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		10: "<< /Type /Outlines /First 11 0 R /Last 13 0 R /Count 3 >>",
		11: "<< /Title (Introduction) /Parent 10 0 R /Next 13 0 R /First 12 0 R /Last 12 0 R /Count 1 /Dest [3 0 R /Fit] >>",
		12: "<< /Title (Background) /Parent 11 0 R /Dest [4 0 R /Fit] >>",
		13: "<< /Title (Results) /Parent 10 0 R /Prev 11 0 R /Dest [5 0 R /Fit] >>",
		14: "<< /Title (A Study of Structural PDF Parsers) /Author (Alice Smith; Bob Jones) /Producer (folio tests) >>",
	}
	for i, text := range samplePages {
		objects[3+i] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 6 0 R >> >> /Contents %d 0 R >>", 7+i)
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects[7+i] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for n := 1; n < len(objects); n++ {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objects[n])
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects))
	for n := 1; n < len(objects); n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 14 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects), xref)
	return buf.Bytes()
}

func TestPDFCPUEngineExtract(t *testing.T) {
	content, err := NewPDFCPUEngine(nil).Extract(context.Background(), samplePDF())
	require.NoError(t, err)

	assert.Equal(t, samplePages, content.Pages)
	assert.Equal(t, "A Study of Structural PDF Parsers", content.Info["title"])
	assert.Equal(t, "Alice Smith; Bob Jones", content.Info["author"])
	assert.Equal(t, "folio tests", content.Info["producer"])
	assert.NotContains(t, content.Info, "keywords")
	assert.Equal(t, []core.TOCEntry{
		{Level: 1, Title: "Introduction", Page: 1},
		{Level: 2, Title: "Background", Page: 2},
		{Level: 1, Title: "Results", Page: 3},
	}, content.Outline)
}

func TestPDFCPUEngineRejectsBrokenFile(t *testing.T) {
	data := samplePDF()
	_, err := NewPDFCPUEngine(nil).Extract(context.Background(), data[:len(data)/2])
	assert.Error(t, err)
}

func TestPDFCPUEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFCPUEngine(nil).Extract(ctx, samplePDF())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStructuralParsesRealPDF(t *testing.T) {
	result, err := NewStructuralParser().Parse(context.Background(), File{Name: "parsers.pdf", Data: samplePDF()})
	require.NoError(t, err)

	assert.False(t, result.Placeholder)
	assert.Equal(t, BackendStructural, result.Backend)
	assert.Equal(t, samplePages, result.Pages)
	assert.Equal(t, "Page one text about parsers\nPage two text\nPage three text", result.Text)
	assert.Equal(t, "A Study of Structural PDF Parsers", result.Title)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, result.Authors)
	assert.Equal(t, "3", result.Metadata["page_count"])
	assert.Equal(t, "pdf", result.Metadata["format"])

	require.Len(t, result.TableOfContents, 3)
	levels := make([]int, 0, 3)
	pages := make([]int, 0, 3)
	for _, entry := range result.TableOfContents {
		levels = append(levels, entry.Level)
		pages = append(pages, entry.Page)
	}
	assert.Equal(t, []int{1, 2, 1}, levels)
	assert.Equal(t, []int{1, 2, 3}, pages)
}
