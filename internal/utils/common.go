package utils

import (
	"regexp"
	"strings"
)

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// RemoveMarkupTags strips angle-bracket annotations such as <noise> or
// <unk> that some recognition engines embed in their transcripts.
func RemoveMarkupTags(text string) string {
	return markupPattern.ReplaceAllString(text, "")
}

// RemoveControlCharacters strips control characters, keeping tab,
// newline and carriage return.
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}

// SanitizeTranscript normalizes raw engine text before it reaches the
// detector: markup annotations and control characters are removed and
// runs of whitespace collapse to single spaces.
func SanitizeTranscript(text string) string {
	text = RemoveMarkupTags(text)
	text = RemoveControlCharacters(text)
	return strings.Join(strings.Fields(text), " ")
}
