package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultLayoutTimeout bounds one conversion request. Layout models are slow
// on long papers.
const DefaultLayoutTimeout = 10 * time.Minute

var (
	pageBreak        = regexp.MustCompile(`\f|<!--\s*page[-_ ]?break\s*-->`)
	firstHeadingLine = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// doclingResponse is the subset of the docling-serve reply we read.
type doclingResponse struct {
	Document struct {
		Filename  string `json:"filename"`
		MdContent string `json:"md_content"`
	} `json:"document"`
	Status string `json:"status"`
	Errors []any  `json:"errors"`
}

// LayoutParser is the high-fidelity backend backed by a docling-serve
// compatible conversion service.
type LayoutParser struct {
	baseURL string
	client  *http.Client
	pool    *ants.Pool
	logger  *slog.Logger

	healthOnce sync.Once
	available bool
}

var _ Parser = (*LayoutParser)(nil)

// LayoutOption configures a LayoutParser.
type LayoutOption func(*LayoutParser) error

// WithLayoutClient replaces the HTTP client.
func WithLayoutClient(client *http.Client) LayoutOption {
	return func(p *LayoutParser) error {
		if client != nil {
			p.client = client
		}
		return nil
	}
}

// WithLayoutLogger sets a custom logger.
func WithLayoutLogger(logger *slog.Logger) LayoutOption {
	return func(p *LayoutParser) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithLayoutWorkers bounds concurrent conversions. Default 1.
func WithLayoutWorkers(n int) LayoutOption {
	return func(p *LayoutParser) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// NewLayoutParser returns a parser for the service at baseURL
// (for example "http://localhost:5001"). An empty baseURL yields a parser
// that is never available.
func NewLayoutParser(baseURL string, opts ...LayoutOption) (*LayoutParser, error) {
	p := &LayoutParser{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultLayoutTimeout},
		logger:  slog.Default().With("component", "layout-parser"),
	}

	all := append([]LayoutOption{WithLayoutWorkers(1)}, opts...)
	for _, opt := range all {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Name returns BackendLayout.
func (p *LayoutParser) Name() string { return BackendLayout }

// Available checks GET {base}/health once and caches the answer.
func (p *LayoutParser) Available() bool {
	p.healthOnce.Do(func() {
		if p.baseURL == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
		if err != nil {
			return
		}
		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Info("layout service unreachable", "url", p.baseURL, "err", err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		p.available = resp.StatusCode == http.StatusOK
		p.logger.Info("checked layout service", "url", p.baseURL, "available", p.available)
	})
	return p.available
}

// Parse converts file on the worker pool and waits for the result or for
// ctx to be done.
func (p *LayoutParser) Parse(ctx context.Context, file File) (*Result, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("%w: no layout service configured", ErrBackendUnavailable)
	}
	if len(file.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	err := p.pool.Submit(func() {
		result, err := p.convert(ctx, file)
		done <- outcome{result, err}
	})
	if err != nil {
		return nil, fmt.Errorf("submit conversion: %w", err)
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *LayoutParser) convert(ctx context.Context, file File) (*Result, error) {
	start := time.Now()
	p.logger.Info("converting document", "file", file.Name, "bytes", len(file.Data))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", file.Name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/convert/file", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("layout service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("layout service: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("layout service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var d doclingResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("layout service: decode response: %w", err)
	}
	if d.Status != "" && d.Status != "success" && d.Status != "partial_success" {
		return nil, fmt.Errorf("layout service conversion %s: %v", d.Status, d.Errors)
	}

	markdown := d.Document.MdContent
	result := &Result{
		Text:     strings.TrimSpace(pageBreak.ReplaceAllString(markdown, "\n")),
		Pages:    splitPages(markdown),
		Metadata: map[string]string{"format": "markdown", "converter": "docling"},
		Backend:  BackendLayout,
	}
	if m := firstHeadingLine.FindStringSubmatch(markdown); m != nil {
		result.Title = strings.TrimSpace(m[1])
	}
	fillFromHeuristics(result, file)

	p.logger.Info("converted document", "file", file.Name, "pages", len(result.Pages), "elapsed", time.Since(start))
	return result, nil
}

// splitPages splits converter output on form feeds or page-break markers and
// drops empty pages.
func splitPages(markdown string) []string {
	var pages []string
	for _, page := range pageBreak.Split(markdown, -1) {
		if page = strings.TrimSpace(page); page != "" {
			pages = append(pages, page)
		}
	}
	return pages
}

// ExtractText returns the full text from Parse.
func (p *LayoutParser) ExtractText(ctx context.Context, file File) (string, error) {
	return extractText(ctx, p, file)
}

// ExtractMetadata returns the metadata view of Parse.
func (p *LayoutParser) ExtractMetadata(ctx context.Context, file File) (Metadata, error) {
	return extractMetadata(ctx, p, file)
}

// Release stops the worker pool.
func (p *LayoutParser) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
