// Package segmenter turns raw text into the normalized form and the ordered
// base-token sequence the phrase pipeline works on. Word boundaries follow
// Unicode UAX #29, which keeps numbers such as "120,000" whole and treats
// Vietnamese syllables as separate words.
package segmenter

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of segmenting one text.
type Result struct {
	// Normalized is the NFC, lowercased, whitespace-collapsed text. Every
	// token and every phrase built from adjacent tokens is checked against it.
	Normalized string
	// Tokens are the base tokens in reading order, duplicates kept.
	Tokens []string
	// Special lists the numeric tokens; they are never dropped as
	// "already merged".
	Special []string
}

// Segmenter is safe for concurrent use.
type Segmenter struct {
	lang language.Tag
}

// New returns a Segmenter whose case mapping follows lang. language.Und
// gives the default Unicode mapping.
func New(lang language.Tag) *Segmenter {
	return &Segmenter{lang: lang}
}

var defaultSegmenter = New(language.Und)

// Segment segments text with the default segmenter.
func Segment(text string) Result {
	return defaultSegmenter.Segment(text)
}

// Normalize normalizes text with the default segmenter.
func Normalize(text string) string {
	return defaultSegmenter.Normalize(text)
}

// Normalize returns the canonical form of text: NFC, lowercase, runs of
// whitespace collapsed to one ASCII space, trimmed.
func (s *Segmenter) Normalize(text string) string {
	// cases.Caser keeps state between calls and is not goroutine safe.
	lower := cases.Lower(s.lang).String(norm.NFC.String(text))
	return strings.Join(strings.Fields(lower), " ")
}

// Segment normalizes text and splits it into base tokens.
func (s *Segmenter) Segment(text string) Result {
	normalized := s.Normalize(text)
	res := Result{Normalized: normalized}
	if normalized == "" {
		return res
	}

	lastNumeric := -1
	lastEnd := -1
	iter := words.FromString(normalized)
	for iter.Next() {
		word := iter.Value()
		if word == "%" && lastNumeric >= 0 && iter.Start() == lastEnd {
			res.Tokens[lastNumeric] += "%"
			res.Special[len(res.Special)-1] += "%"
			lastNumeric = -1
			continue
		}
		lastNumeric = -1
		hasLetter, hasDigit := classify(word)
		switch {
		case hasLetter && hasDigit:
			continue
		case hasDigit:
			res.Tokens = append(res.Tokens, word)
			res.Special = append(res.Special, word)
			lastNumeric = len(res.Tokens) - 1
			lastEnd = iter.End()
		case hasLetter:
			res.Tokens = append(res.Tokens, word)
		}
	}
	return res
}

// IsMixedNumeric reports whether s contains at least one digit and at least
// one letter, as in "world123" or "12 nghìn".
func IsMixedNumeric(s string) bool {
	hasLetter, hasDigit := classify(s)
	return hasLetter && hasDigit
}

func classify(s string) (hasLetter, hasDigit bool) {
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
		if hasLetter && hasDigit {
			return
		}
	}
	return
}
