// Package fingerprint computes winnowing-style text signatures and the
// directional containment score between two of them.
package fingerprint

import (
	"strings"
	"unicode"
)

// Defaults for Engine.
const (
	DefaultNGramSize  = 5
	DefaultWindowSize = 50
)

// stripped holds the punctuation removed before fingerprinting, in addition
// to all whitespace. '-' is deliberately absent.
const stripped = "~`!@#$%^&*()_=+[{]}\\|;:'\",<.>/?…“”•–≤’®©"

// Fingerprint is the ordered list of n-grams selected from a text.
type Fingerprint []string

// Engine fingerprints texts with fixed n-gram and window sizes. It is
// immutable and safe for concurrent use.
type Engine struct {
	n int
	w int
}

// New returns an Engine. Non-positive sizes fall back to the defaults.
func New(ngramSize, windowSize int) *Engine {
	if ngramSize <= 0 {
		ngramSize = DefaultNGramSize
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Engine{n: ngramSize, w: windowSize}
}

// Preprocess drops whitespace and punctuation and lowercases the rest.
func Preprocess(text string) []rune {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsSpace(r) || strings.ContainsRune(stripped, r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// Fingerprint slides over the n-grams of the preprocessed text, one per rune
// position, and collects them in windows of w. From each full window, and
// from the trailing partial window, it keeps the n-gram with the largest sum
// of code points; the first one wins a tie. N-grams near the end of the text
// are shorter than n.
func (e *Engine) Fingerprint(text string) Fingerprint {
	runes := Preprocess(text)
	if len(runes) == 0 {
		return nil
	}
	fp := make(Fingerprint, 0, len(runes)/e.w+1)

	var (
		best    string
		bestVal int
		filled  int
	)
	for i := range runes {
		gram := runes[i:min(i+e.n, len(runes))]
		val := 0
		for _, r := range gram {
			val += int(r)
		}
		if val > bestVal {
			best, bestVal = string(gram), val
		}
		filled++
		if filled >= e.w || i == len(runes)-1 {
			if bestVal > 0 {
				fp = append(fp, best)
			}
			best, bestVal, filled = "", 0, 0
		}
	}
	return fp
}

// Compare returns the fraction of a's grams that occur anywhere in b. It is
// not symmetric, and is 0 when either side is empty.
func Compare(a, b Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, g := range b {
		set[g] = struct{}{}
	}
	found := 0
	for _, g := range a {
		if _, ok := set[g]; ok {
			found++
		}
	}
	return float64(found) / float64(len(a))
}
