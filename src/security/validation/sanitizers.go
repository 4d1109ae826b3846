package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText removes all HTML tags and attributes from an input string.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, allowing space and tab.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' {
			return r
		}
		return -1
	}, s)
}

// CleanField is applied to every text cell read from an import file: it drops
// control characters and the BOM, strips markup and trims surrounding space.
// Markup escaping done by the policy is undone so that "A&B" stays "A&B".
func CleanField(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = StripUnprintable(s)
	if strings.ContainsAny(s, "<>") {
		s = html.UnescapeString(SanitizeText(s))
	}
	return strings.TrimSpace(s)
}
