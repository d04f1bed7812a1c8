package store

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxTokenLen bounds the indexed length of a single token.
const maxTokenLen = 32

// NormalizeText case-folds s and strips diacritics, so "Zoë" and "ZOE" match.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Tokens splits normalized text into unique words for the text indexes.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(NormalizeText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = truncate(f)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// HandleTokens indexes the whole handle plus its '_' and '.' separated parts.
func HandleTokens(handle string) []string {
	whole := NormalizeText(handle)
	tokens := Tokens(handle)
	for _, t := range tokens {
		if t == whole {
			return tokens
		}
	}
	return append([]string{truncate(whole)}, tokens...)
}

func truncate(s string) string {
	if len(s) <= maxTokenLen {
		return s
	}
	n := maxTokenLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
