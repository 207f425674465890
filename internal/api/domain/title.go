package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxTrackTitleLength bounds user-edited track titles in runes
	MaxTrackTitleLength = 140
	// MaxDerivedTitleWords caps titles derived from prompts
	MaxDerivedTitleWords = 8

	untitled = "Untitled"
)

// request phrasing stripped from the front of a prompt, longest first
var titlePrefixes = []string{
	"please generate a ", "please generate an ", "please generate ",
	"please create a ", "please create an ", "please create ",
	"please make a ", "please make an ", "please make ",
	"please write a ", "please write an ", "please write ",
	"generate a ", "generate an ", "generate ",
	"create a ", "create an ", "create ",
	"make a ", "make an ", "make ",
	"write a ", "write an ", "write ",
	"narrate a ", "narrate an ", "narrate ",
	"read a ", "read an ", "read ",
	"please ",
}

// DeriveTitle maps a prompt to a short display title.
func DeriveTitle(prompt string) string {
	s := collapseSpaces(stripControl(prompt))
	if s == "" {
		return untitled
	}

	if i := strings.IndexAny(s, ".!?;"); i > 0 {
		s = s[:i]
	}

	lower := strings.ToLower(s)
	for _, p := range titlePrefixes {
		if strings.HasPrefix(lower, p) && len(s) > len(p) {
			s = s[len(p):]
			break
		}
	}

	words := strings.Fields(s)
	if len(words) > MaxDerivedTitleWords {
		words = words[:MaxDerivedTitleWords]
	}
	s = strings.Trim(strings.Join(words, " "), " ,:-")
	s = truncateRunes(s, MaxJobTitleLength)
	if s == "" {
		return untitled
	}

	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// SanitizeTrackTitle strips control characters, collapses whitespace and bounds
// the length. An empty result is an input error.
func SanitizeTrackTitle(title string) (string, error) {
	s := truncateRunes(collapseSpaces(stripControl(title)), MaxTrackTitleLength)
	if s == "" {
		return "", NewInvalidInput("INVALID_TITLE", "title must not be empty")
	}
	return s, nil
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
