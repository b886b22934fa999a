package textextract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// TruncationMarker is appended when normalized text exceeds the character budget.
const TruncationMarker = "\n[...truncated]"

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// Normalize prepares extracted text for a prompt using the default budget.
func Normalize(s string) string {
	return NormalizeWithLimit(s, constants.DefaultTextMaxChars)
}

// NormalizeWithLimit unifies line endings, strips characters outside printable
// ASCII/Latin-1 (keeping \n and \t), trims each line's trailing whitespace,
// collapses runs of blank lines to one, drops leading and trailing empty lines
// and cuts the result to max characters. max <= 0 disables truncation.
func NormalizeWithLimit(s string, max int) string {
	if s == "" {
		return ""
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.Map(keepPrintable, s)

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\f\v")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	s = strings.Trim(s, "\n")

	if max > 0 && utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max]) + TruncationMarker
	}
	return s
}

func keepPrintable(r rune) rune {
	switch {
	case r == '\n', r == '\t':
		return r
	case r >= 0x20 && r <= 0x7E:
		return r
	case r >= 0xA0 && r <= 0xFF:
		return r
	default:
		return -1
	}
}
