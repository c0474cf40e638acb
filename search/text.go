package search

import (
	"strings"
	"unicode"
)

// stopWords never count toward a verbatim match. Question words are in the
// list because queries are usually phrased as questions.
var stopWords = setOf(
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "do", "does",
	"for", "from", "have", "how", "in", "is", "it", "not", "of", "on", "or",
	"our", "paper", "that", "the", "this", "to", "was", "we", "what", "which",
	"why", "with",
)

func setOf(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// significantWords lowercases text, splits it on anything that is not a
// letter or digit and drops stop words.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			words = append(words, f)
		}
	}
	return words
}

// containsAllQueryWords reports whether every significant query word occurs
// in chunk. A query made only of stop words never matches.
func containsAllQueryWords(chunk, query string) bool {
	wanted := significantWords(query)
	if len(wanted) == 0 {
		return false
	}

	present := setOf(significantWords(chunk)...)
	for _, w := range wanted {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
