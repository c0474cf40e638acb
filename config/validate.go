package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/folio/splitter"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateSplitter, splitter.Config{})
	v.RegisterStructValidation(validateStorage, StorageConfig{})
	v.RegisterStructValidation(validateFiles, FilesConfig{})
	v.RegisterStructValidation(validateParser, ParserConfig{})
	return v
}

func validateSplitter(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(splitter.Config)
	switch cfg.Strategy {
	case "", splitter.StrategyRecursive, splitter.StrategySentence, splitter.StrategyToken:
	default:
		sl.ReportError(cfg.Strategy, "Strategy", "Strategy", "oneof", "recursive sentence token")
	}
	if cfg.ChunkSize <= 0 {
		sl.ReportError(cfg.ChunkSize, "ChunkSize", "ChunkSize", "gt", "0")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		sl.ReportError(cfg.ChunkOverlap, "ChunkOverlap", "ChunkOverlap", "ltfield", "ChunkSize")
	} else if (cfg.Strategy == "" || cfg.Strategy == splitter.StrategyRecursive) && cfg.ChunkOverlap*5 > cfg.ChunkSize {
		sl.ReportError(cfg.ChunkOverlap, "ChunkOverlap", "ChunkOverlap", "max", "ChunkSize/5")
	}
}

func validateStorage(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(StorageConfig)
	if cfg.Backend == StoragePostgres && cfg.Postgres.DSN == "" {
		sl.ReportError(cfg.Postgres.DSN, "Postgres.DSN", "DSN", "required_if", "Backend postgres")
	}
	if cfg.Postgres.Dimension < 0 {
		sl.ReportError(cfg.Postgres.Dimension, "Postgres.Dimension", "Dimension", "gte", "0")
	}
}

func validateFiles(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(FilesConfig)
	switch cfg.Backend {
	case FilesLocal:
		if cfg.Local.Root == "" {
			sl.ReportError(cfg.Local.Root, "Local.Root", "Root", "required_if", "Backend local")
		}
	case FilesGCS:
		if cfg.GCS.Bucket == "" {
			sl.ReportError(cfg.GCS.Bucket, "GCS.Bucket", "Bucket", "required_if", "Backend gcs")
		}
	}
}

func validateParser(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(ParserConfig)
	if cfg.Kind == "layout" && cfg.LayoutURL == "" {
		sl.ReportError(cfg.LayoutURL, "LayoutURL", "LayoutURL", "required_if", "Kind layout")
	}
}

// Validate normalizes the embedding settings and checks every section.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		for _, e := range verrs {
			errs = append(errs, fmt.Errorf("%s failed on '%s' tag", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag()))
		}
	}
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
