// Package textutil holds the text normalization shared by post creation,
// prefix search and attach snippets.
package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis marks a truncated snippet.
const Ellipsis = "…"

var lower = cases.Lower(language.Und)

// Lower returns the search key of s: NFC-normalized and lower-cased. Post
// titles and search prefixes go through the same function so Hangul typed
// as decomposed jamo still matches.
func Lower(s string) string {
	return lower.String(norm.NFC.String(s))
}

// Snippet returns s unchanged when it has at most limit characters, and
// otherwise its first limit characters followed by Ellipsis.
func Snippet(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString(Ellipsis)
	return b.String()
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}
