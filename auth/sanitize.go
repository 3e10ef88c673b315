package auth

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// SanitizeString strips HTML and control characters from text shown to
// other players (aliases, display names) and collapses runs of whitespace.
func SanitizeString(input string) string {
	cleaned := policy.Sanitize(input)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}
