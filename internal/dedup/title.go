// Package dedup merges paper records that describe the same work.
//
// Identity is resolved with two keys: the DOI (when the external identifier
// is one) and a normalized title. When records collide, the one from the
// higher-priority source survives.
package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped from normalized titles.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "and": {}, "or": {}, "to": {}, "with": {},
}

// NormalizeTitle builds the title identity key:
//   - Lowercases and decomposes (NFKD), dropping combining marks
//   - Removes every character that is not an ASCII letter, digit or space
//   - Drops stop words
//   - Collapses whitespace
//
// "Deep Learning: A Review" and "deep learning review" share a key. The
// result is "" when nothing survives, and such titles never match.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return ""
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
		// Everything else (punctuation, non-Latin letters) is dropped.
	}

	words := strings.Fields(sb.String())
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
