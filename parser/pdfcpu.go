package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/poiesic/folio/core"
)

// PDFContent is what a PDFEngine recovers from one PDF.
type PDFContent struct {
	Pages   []string
	Info    map[string]string
	Outline []core.TOCEntry
}

// PDFEngine reads PDF structure and page text.
type PDFEngine interface {
	Extract(ctx context.Context, data []byte) (*PDFContent, error)
}

var disableConfigDir sync.Once

// PDFCPUEngine is the default PDFEngine. pdfcpu validates the file and reads
// its info dictionary and outline; page text comes from ledongthuc/pdf, which
// decodes font encodings and ToUnicode maps.
type PDFCPUEngine struct {
	logger *slog.Logger
}

// NewPDFCPUEngine returns a PDFEngine that validates in relaxed mode.
func NewPDFCPUEngine(logger *slog.Logger) *PDFCPUEngine {
	disableConfigDir.Do(api.DisableConfigDir)
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFCPUEngine{logger: logger.With("component", "pdfcpu")}
}

// Extract reads the page count, info dictionary, outline and page text.
// A page whose text cannot be decoded contributes an empty string.
func (e *PDFCPUEngine) Extract(ctx context.Context, data []byte) (*PDFContent, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	doc, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(doc); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	if err := doc.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}

	content := &PDFContent{
		Pages: make([]string, 0, doc.PageCount),
		Info:  infoFields(doc),
	}

	text, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read page text: %w", err)
	}
	for page := 1; page <= doc.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content.Pages = append(content.Pages, e.pageText(text, page))
	}

	bookmarks, err := pdfcpu.Bookmarks(doc)
	if err != nil {
		e.logger.Debug("no outline", "err", err)
	}
	content.Outline = flattenBookmarks(bookmarks, 1, nil)

	return content, nil
}

func (e *PDFCPUEngine) pageText(r *pdf.Reader, page int) string {
	p := r.Page(page)
	if p.V.IsNull() {
		e.logger.Debug("page not found in page tree", "page", page)
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		e.logger.Debug("skipping unreadable page", "page", page, "err", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func infoFields(pdf *model.Context) map[string]string {
	fields := map[string]string{
		"title":    pdf.Title,
		"author":   pdf.Author,
		"subject":  pdf.Subject,
		"keywords": pdf.Keywords,
		"creator":  pdf.Creator,
		"producer": pdf.Producer,
	}
	for k, v := range fields {
		v = strings.TrimSpace(v)
		if v == "" {
			delete(fields, k)
		} else {
			fields[k] = v
		}
	}
	return fields
}

func flattenBookmarks(bookmarks []pdfcpu.Bookmark, level int, out []core.TOCEntry) []core.TOCEntry {
	for _, bm := range bookmarks {
		out = append(out, core.TOCEntry{Level: level, Title: strings.TrimSpace(bm.Title), Page: bm.PageFrom})
		out = flattenBookmarks(bm.Kids, level+1, out)
	}
	return out
}
