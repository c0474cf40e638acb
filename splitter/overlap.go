package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// slack is the tolerated overshoot when judging whether a split is acceptable.
const slack = 1.2

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func validateSizes(size, overlap int) error {
	if size <= 0 {
		return ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= size {
		return ErrInvalidOverlap
	}
	return nil
}

// validateSlack rejects overlaps larger than size/5. Every chunk then stays
// within size*slack once its overlap prefix is added.
func validateSlack(size, overlap int) error {
	if overlap*5 > size {
		return fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlap, size)
	}
	return nil
}

// withinSlack reports whether no chunk exceeds size by more than the allowed slack.
func withinSlack(chunks []string, size int) bool {
	if len(chunks) == 0 {
		return false
	}
	limit := int(float64(size) * slack)
	for _, c := range chunks {
		if runeLen(c) > limit {
			return false
		}
	}
	return true
}

// splitByCharacter slices text into windows of size runes, advancing by
// size-overlap runes each step.
func splitByCharacter(text string, size, overlap int) []string {
	runes := []rune(text)
	stride := size - overlap
	if stride < 1 {
		stride = 1
	}

	var chunks []string
	for i := 0; i < len(runes); i += stride {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// applyOverlap prefixes every chunk after the first with the trailing overlap
// runes of the chunk emitted before it.
func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]string, 0, len(chunks))
	result = append(result, chunks[0])
	for i := 1; i < len(chunks); i++ {
		prefix := tail(result[i-1], overlap)
		result = append(result, prefix+chunks[i])
	}
	return result
}

// accumulator greedily packs pieces into chunks of at most size runes.
type accumulator struct {
	size    int
	chunks  []string
	current strings.Builder
	curLen  int
}

func (a *accumulator) fits(n int) bool {
	return a.curLen+n <= a.size
}

func (a *accumulator) add(piece string, n int) {
	a.current.WriteString(piece)
	a.curLen += n
}

func (a *accumulator) reset(piece string) {
	a.current.Reset()
	a.curLen = 0
	a.add(piece, runeLen(piece))
}

func (a *accumulator) flush() {
	if a.curLen == 0 {
		return
	}
	if chunk := strings.TrimSpace(a.current.String()); chunk != "" {
		a.chunks = append(a.chunks, chunk)
	}
	a.current.Reset()
	a.curLen = 0
}

// carry emits all but the last of sub and keeps the last as the open chunk.
func (a *accumulator) carry(sub []string) {
	if len(sub) == 0 {
		return
	}
	for _, s := range sub[:len(sub)-1] {
		if s = strings.TrimSpace(s); s != "" {
			a.chunks = append(a.chunks, s)
		}
	}
	a.reset(sub[len(sub)-1])
}
