// Package textnorm canonicalizes chat input before it is compared with menu commands.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases raw, turns every rune that is not a letter, mark or
// digit into a space, collapses whitespace runs and trims the result.
// Input is NFC-composed first so decomposed Cyrillic (и + U+0306) survives as "й".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	// A Caser carries state, so each call gets its own.
	s := norm.NFC.String(cases.Lower(language.Und).String(norm.NFC.String(raw)))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Set is a lookup table of normalized keywords.
type Set map[string]struct{}

// Keywords normalizes words into a Set, skipping ones that normalize to nothing.
func Keywords(words ...string) Set {
	set := make(Set, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether the already normalized text is one of the keywords.
func (s Set) Has(normalized string) bool {
	_, ok := s[normalized]
	return ok
}
