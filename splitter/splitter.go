package splitter

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Strategy names accepted by New.
const (
	StrategyRecursive = "recursive"
	StrategySentence  = "sentence"
	StrategyToken     = "token"
)

// DefaultEncoding is the tiktoken encoding used by the token strategy.
const DefaultEncoding = "cl100k_base"

// Config selects and parameterizes a splitter.
type Config struct {
	Strategy          string   `yaml:"strategy"`
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	MinSentenceLength int      `yaml:"min_sentence_length,omitempty"`
	Separators        []string `yaml:"separators,omitempty"`
	Encoding          string   `yaml:"encoding,omitempty"`
}

// DefaultConfig returns a recursive splitter configuration with
// 1000-character chunks and 200 characters of overlap.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyRecursive,
		ChunkSize:         1000,
		ChunkOverlap:      200,
		MinSentenceLength: DefaultMinSentenceLength,
		Encoding:          DefaultEncoding,
	}
}

// New builds the splitter described by cfg.
func New(cfg Config) (textsplitter.TextSplitter, error) {
	if err := validateSizes(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}

	switch cfg.Strategy {
	case "", StrategyRecursive:
		if err := validateSlack(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
			return nil, err
		}
		s := NewRecursive(cfg.ChunkSize, cfg.ChunkOverlap)
		if len(cfg.Separators) > 0 {
			s.Separators = cfg.Separators
		}
		return s, nil
	case StrategySentence:
		s := NewSentence(cfg.ChunkSize, cfg.ChunkOverlap)
		if cfg.MinSentenceLength > 0 {
			s.MinSentenceLength = cfg.MinSentenceLength
		}
		return s, nil
	case StrategyToken:
		return NewToken(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Encoding), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// NewToken returns a splitter that windows text by tiktoken tokens rather
// than characters. Sizes are token counts.
func NewToken(chunkSize, chunkOverlap int, encoding string) textsplitter.TextSplitter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return textsplitter.NewTokenSplitter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithEncodingName(encoding),
	)
}
