package splitter

import (
	"strings"
)

// Span is the byte range of a chunk's own text (overlap prefix excluded)
// inside the source text. Start is -1 when the chunk could not be located.
type Span struct {
	Start int
	End   int
}

// needleLen bounds how much of a chunk is searched for; splitters normalize
// separators and whitespace, so long needles match less often.
const needleLen = 64

// Locate finds where each chunk starts in text. chunks must be the output of
// a splitter configured with the given overlap.
func Locate(text string, chunks []string, overlap int) []Span {
	spans := make([]Span, len(chunks))
	cursor := 0

	for i, chunk := range chunks {
		body := chunk
		if i > 0 && overlap > 0 {
			prefix := tail(chunks[i-1], overlap)
			body = strings.TrimPrefix(chunk, prefix)
		}
		body = strings.TrimSpace(body)

		needle := head(body, needleLen)
		idx := -1
		if needle != "" && cursor <= len(text) {
			idx = strings.Index(text[cursor:], needle)
		}
		if idx < 0 {
			spans[i] = Span{Start: -1, End: -1}
			continue
		}

		start := cursor + idx
		spans[i] = Span{Start: start, End: min(start+len(body), len(text))}
		cursor = start + 1
	}

	return spans
}

// head returns the first n runes of s.
func head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// PageOf maps a byte offset to a 1-based page number given each page's
// starting offset. Returns 0 when offset is negative or starts is empty.
func PageOf(starts []int, offset int) int {
	if offset < 0 || len(starts) == 0 {
		return 0
	}
	page := 0
	for i, s := range starts {
		if offset < s {
			break
		}
		page = i + 1
	}
	return page
}

// PageStarts returns the offset at which each page begins inside text, where
// text is the pages joined with separators that may have been normalized.
// Offsets never decrease; a page that cannot be found starts where the
// previous one ended.
func PageStarts(text string, pages []string) []int {
	starts := make([]int, len(pages))
	cursor := 0

	for i, page := range pages {
		page = strings.TrimSpace(page)
		start := cursor
		if needle := head(page, needleLen); needle != "" {
			if idx := strings.Index(text[cursor:], needle); idx >= 0 {
				start = cursor + idx
			}
		}
		starts[i] = start
		cursor = min(start+len(page), len(text))
	}

	return starts
}
