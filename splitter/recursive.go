package splitter

import (
	"slices"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators is the coarse-to-fine separator list used when none is given.
// The empty separator means "slice by raw character offset".
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Recursive splits text on the coarsest separator that yields acceptable
// chunks, re-splitting oversized pieces with progressively finer separators.
//
// No chunk, overlap prefix included, is longer than ChunkSize*1.2 runes.
// ChunkOverlap is therefore limited to ChunkSize/5; SplitText returns
// ErrOverlapTooLarge beyond that.
type Recursive struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

var _ textsplitter.TextSplitter = Recursive{}

// NewRecursive returns a Recursive splitter using DefaultSeparators.
func NewRecursive(chunkSize, chunkOverlap int) Recursive {
	return Recursive{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   slices.Clone(DefaultSeparators),
	}
}

// SplitText splits text into ordered chunks.
// Text no longer than ChunkSize is returned unchanged as a single chunk.
func (s Recursive) SplitText(text string) ([]string, error) {
	if err := validateSizes(s.ChunkSize, s.ChunkOverlap); err != nil {
		return nil, err
	}
	if err := validateSlack(s.ChunkSize, s.ChunkOverlap); err != nil {
		return nil, err
	}

	separators := s.Separators
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	chunks := s.split(text, separators)
	return applyOverlap(chunks, s.ChunkOverlap), nil
}

// split fixes chunk boundaries without applying overlap.
func (s Recursive) split(text string, separators []string) []string {
	if runeLen(text) <= s.ChunkSize {
		return []string{text}
	}

	var chunks []string
	for i, sep := range separators {
		if sep == "" {
			chunks = splitByCharacter(text, s.ChunkSize, s.ChunkOverlap)
			break
		}
		if !strings.Contains(text, sep) {
			continue
		}
		chunks = s.splitBySeparator(text, sep, separators[i+1:])
		if withinSlack(chunks, s.ChunkSize) {
			break
		}
	}

	// Separator lists without "" can run out of options.
	if len(chunks) == 0 {
		chunks = splitByCharacter(text, s.ChunkSize, s.ChunkOverlap)
	}
	return chunks
}

// splitBySeparator splits on sep and greedily reassembles the pieces, keeping
// the separator attached to every piece but the last.
func (s Recursive) splitBySeparator(text, sep string, finer []string) []string {
	parts := strings.Split(text, sep)
	acc := &accumulator{size: s.ChunkSize}

	for i, part := range parts {
		piece := part
		if i < len(parts)-1 {
			piece += sep
		}
		n := runeLen(piece)

		if acc.fits(n) {
			acc.add(piece, n)
			continue
		}

		acc.flush()
		if n > s.ChunkSize {
			acc.carry(s.split(piece, finer))
		} else {
			acc.reset(piece)
		}
	}
	acc.flush()

	return acc.chunks
}
