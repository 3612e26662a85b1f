// Package textutil cleans customer-supplied free text before it is stored on an order.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanText removes markup and control characters, collapses whitespace runs,
// folds the result to NFC and truncates it to limit runes (limit <= 0 keeps all).
func CleanText(value string, limit int) string {
	if value == "" {
		return ""
	}
	// StrictPolicy escapes entities; unescape so "&" round-trips as typed.
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	stripped = norm.NFC.String(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	count := 0
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if limit > 0 && count >= limit {
			break
		}
		if space {
			b.WriteByte(' ')
			count++
			space = false
			if limit > 0 && count >= limit {
				break
			}
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// CleanCode is CleanText for identifiers such as tracking numbers and postal
// codes: interior whitespace is removed and letters are upper-cased.
func CleanCode(value string, limit int) string {
	cleaned := CleanText(value, 0)
	cleaned = strings.ToUpper(strings.Join(strings.Fields(cleaned), ""))
	if limit > 0 {
		if runes := []rune(cleaned); len(runes) > limit {
			cleaned = string(runes[:limit])
		}
	}
	return cleaned
}
