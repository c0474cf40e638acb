package parser

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Kind selects a backend.
type Kind string

const (
	KindAuto       Kind = "auto"
	KindLayout     Kind = "layout"
	KindStructural Kind = "structural"
)

// Options configures the backends New may build.
type Options struct {
	// LayoutURL is the conversion service base URL. Empty disables the
	// layout backend.
	LayoutURL string

	// LayoutWorkers bounds concurrent conversions.
	LayoutWorkers int

	// HTTPClient is used for the conversion service.
	HTTPClient *http.Client

	// Structural options, for example WithPDFEngine.
	Structural []StructuralOption

	Logger *slog.Logger
}

// New returns the parser for kind. KindAuto prefers the layout backend when
// it is available and falls back to the structural backend otherwise.
func New(kind Kind, opts Options) (Parser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "parser-factory")

	switch kind {
	case KindLayout:
		return newLayout(opts)
	case KindStructural:
		return newStructural(opts), nil
	case KindAuto, "":
		layout, err := newLayout(opts)
		if err != nil {
			return nil, err
		}
		if layout.Available() {
			logger.Info("selected parser", "backend", BackendLayout)
			return layout, nil
		}
		layout.Release()
		logger.Info("selected parser", "backend", BackendStructural, "reason", "layout service unavailable")
		return newStructural(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, kind)
	}
}

func newLayout(opts Options) (*LayoutParser, error) {
	layoutOpts := []LayoutOption{WithLayoutClient(opts.HTTPClient)}
	if opts.LayoutWorkers > 0 {
		layoutOpts = append(layoutOpts, WithLayoutWorkers(opts.LayoutWorkers))
	}
	if opts.Logger != nil {
		layoutOpts = append(layoutOpts, WithLayoutLogger(opts.Logger.With("component", "layout-parser")))
	}
	return NewLayoutParser(opts.LayoutURL, layoutOpts...)
}

func newStructural(opts Options) *StructuralParser {
	structuralOpts := opts.Structural
	if opts.Logger != nil {
		structuralOpts = append([]StructuralOption{WithStructuralLogger(opts.Logger.With("component", "structural-parser"))}, structuralOpts...)
	}
	return NewStructuralParser(structuralOpts...)
}
