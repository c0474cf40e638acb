package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	headerScanLines = 20
	minTitleLength  = 20
	unknownTitle    = "Unknown Title"
)

var (
	titleRejectChars = regexp.MustCompile(`[@#$%^*()={}\[\]]`)
	markdownHeading  = regexp.MustCompile(`^#{1,6}\s+`)
	authorMarker     = regexp.MustCompile(`(?i)^(?:authors?\s*:|by\s*:|written by\s*:?)\s*(.+)$`)
	andSeparator     = regexp.MustCompile(`(?i)\s+and\s+|\s*&\s*`)

	abstractHeader = regexp.MustCompile(`(?i)abstract\s*\n`)
	abstractEnd    = regexp.MustCompile(`(?i)\n\s*\n|\n1\s|\nintroduction|\nkeywords`)
	summaryHeader  = regexp.MustCompile(`(?i)summary\s*\n`)
	summaryEnd     = regexp.MustCompile(`\n\s*\n`)
)

// ExtractTitle returns the first of the leading lines that is longer than 20
// characters and free of markup symbols. It falls back to the file name stem.
func ExtractTitle(text, filename string) string {
	for _, line := range leadingLines(text, headerScanLines) {
		line = strings.TrimSpace(markdownHeading.ReplaceAllString(line, ""))
		if utf8.RuneCountInString(line) > minTitleLength && !titleRejectChars.MatchString(line) {
			return line
		}
	}

	if stem := (File{Name: filename}).Stem(); stem != "" {
		return stem
	}
	return unknownTitle
}

// ExtractAuthors looks for an "Authors:", "Author:", "By:" or "Written by"
// line among the leading lines and splits it on commas, semicolons and "and".
// Returns an empty slice when no marker is found.
func ExtractAuthors(text string) []string {
	for _, line := range leadingLines(text, headerScanLines) {
		m := authorMarker.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		return SplitAuthors(m[1])
	}
	return []string{}
}

// SplitAuthors splits an author list on commas, semicolons and "and".
func SplitAuthors(s string) []string {
	authors := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		for _, name := range andSeparator.Split(part, -1) {
			name = strings.TrimSpace(name)
			name = strings.TrimSpace(strings.TrimPrefix(name, "and "))
			if name != "" {
				authors = append(authors, name)
			}
		}
	}
	return authors
}

// ExtractAbstract returns the text between an "Abstract" header and the next
// blank line or major heading ("1 ", "Introduction", "Keywords"). A "Summary"
// section is used when there is no abstract. Returns "" when neither is found.
func ExtractAbstract(text string) string {
	if s, ok := section(text, abstractHeader, abstractEnd); ok {
		return s
	}
	if s, ok := section(text, summaryHeader, summaryEnd); ok {
		return s
	}
	return ""
}

// section returns the text after the first header match up to the nearest
// end match. Both must be present.
func section(text string, header, end *regexp.Regexp) (string, bool) {
	loc := header.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	e := end.FindStringIndex(body)
	if e == nil {
		return "", false
	}
	return strings.TrimSpace(body[:e[0]]), true
}

func leadingLines(text string, n int) []string {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
