package splitter

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultMinSentenceLength drops fragments such as headings, page numbers and
// stray initials from sentence-aware splitting.
const DefaultMinSentenceLength = 20

var sentenceEnding = regexp.MustCompile(`[.!?]+\s+`)

// Sentence packs whole sentences into chunks. Only a single sentence longer
// than ChunkSize is cut at character offsets.
type Sentence struct {
	ChunkSize         int
	ChunkOverlap      int
	MinSentenceLength int
}

var _ textsplitter.TextSplitter = Sentence{}

// NewSentence returns a Sentence splitter with DefaultMinSentenceLength.
func NewSentence(chunkSize, chunkOverlap int) Sentence {
	return Sentence{
		ChunkSize:         chunkSize,
		ChunkOverlap:      chunkOverlap,
		MinSentenceLength: DefaultMinSentenceLength,
	}
}

// SplitText splits text on sentence boundaries.
func (s Sentence) SplitText(text string) ([]string, error) {
	if err := validateSizes(s.ChunkSize, s.ChunkOverlap); err != nil {
		return nil, err
	}

	if runeLen(text) <= s.ChunkSize {
		return []string{text}, nil
	}

	acc := &accumulator{size: s.ChunkSize}
	for _, sentence := range sentenceEnding.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || runeLen(sentence) < s.MinSentenceLength {
			continue
		}

		// The final sentence keeps its own punctuation since nothing follows it.
		terminated := sentence + ". "
		if strings.ContainsAny(sentence[len(sentence)-1:], ".!?") {
			terminated = sentence + " "
		}
		n := runeLen(terminated)
		if acc.fits(n) {
			acc.add(terminated, n)
			continue
		}

		acc.flush()
		if n > s.ChunkSize {
			acc.carry(splitByCharacter(sentence, s.ChunkSize, s.ChunkOverlap))
		} else {
			acc.reset(terminated)
		}
	}
	acc.flush()

	return applyOverlap(acc.chunks, s.ChunkOverlap), nil
}
