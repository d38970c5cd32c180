// Package text cleans externally supplied text before it reaches a prompt or a transcript.
package text

import (
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var (
	markupPattern   = regexp.MustCompile(`<[^>]*>`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

// nonPortable drops everything outside 7-bit ASCII plus control characters other than \n and \t.
var nonPortable = runes.Remove(runes.Predicate(func(r rune) bool {
	if r > unicode.MaxASCII {
		return true
	}
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// Normalize strips markup and non-portable characters, collapses blank-line runs to
// a single blank line and trims surrounding whitespace. It never panics; on an
// internal failure it returns "". Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[text] normalize recovered from panic: %v", r)
			out = ""
		}
	}()

	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = markupPattern.ReplaceAllString(s, "")

	cleaned, _, err := transform.String(nonPortable, s)
	if err != nil {
		log.Printf("[text] normalize transform failed: %v", err)
		return ""
	}

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	cleaned = blankRunPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(cleaned)
}

// Truncate keeps at most limit runes of s. A non-positive limit disables the cap.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
