package phrase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FilterIrrelevant removes phrases that are explained by a longer phrase
// recurring in text.
//
// For each distinct phrase p, the containing phrases are the other phrases
// holding p as a run of whole words. A containing phrase q qualifies when it
// occurs in text more than once and at least threshold percent as often as
// p. If any q qualifies, p is dropped, together with every containing phrase
// that neither qualifies nor contains a qualifying phrase.
//
// The result keeps the input order and duplicates of surviving phrases.
func FilterIrrelevant(text string, phrases []string, threshold float64) []string {
	if len(phrases) == 0 {
		return phrases
	}
	distinct := unique(phrases)

	// A phrase can only contain p if it contains p's first word, so bucket
	// phrases by word to avoid comparing every pair.
	byWord := make(map[string][]string)
	for _, ph := range distinct {
		seen := make(map[string]struct{})
		for _, w := range strings.Split(ph, " ") {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			byWord[w] = append(byWord[w], ph)
		}
	}

	counts := make(map[string]int, len(distinct))
	count := func(ph string) int {
		if n, ok := counts[ph]; ok {
			return n
		}
		n := countOccurrences(text, ph)
		counts[ph] = n
		return n
	}

	irrelevant := make(map[string]struct{})
	for _, p := range distinct {
		first, _, _ := strings.Cut(p, " ")
		var containing []string
		for _, q := range byWord[first] {
			if q != p && containsPhrase(q, p) {
				containing = append(containing, q)
			}
		}
		if len(containing) == 0 {
			continue
		}

		required := float64(count(p)) * threshold / 100
		var qualifying []string
		for _, q := range containing {
			if n := count(q); n > 1 && float64(n) >= required {
				qualifying = append(qualifying, q)
			}
		}
		if len(qualifying) == 0 {
			continue
		}

		irrelevant[p] = struct{}{}
		for _, q := range containing {
			covered := false
			for _, r := range qualifying {
				if q == r || containsPhrase(q, r) {
					covered = true
					break
				}
			}
			if !covered {
				irrelevant[q] = struct{}{}
			}
		}
	}

	return without(phrases, irrelevant)
}

// countOccurrences counts possibly overlapping occurrences of ph in text
// that start and end on a word boundary: the edge of text or a rune that is
// neither a letter nor a digit.
func countOccurrences(text, ph string) int {
	if ph == "" {
		return 0
	}
	n := 0
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], ph)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(ph)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			n++
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return n
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// containsPhrase reports whether q holds p as a run of whole space-separated
// words. A phrase does not contain itself.
func containsPhrase(q, p string) bool {
	if len(p) >= len(q) {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(q[offset:], p)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(p)
		if (start == 0 || q[start-1] == ' ') && (end == len(q) || q[end] == ' ') {
			return true
		}
		offset = start + 1
	}
}

func unique(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, ph := range phrases {
		if _, ok := seen[ph]; ok {
			continue
		}
		seen[ph] = struct{}{}
		out = append(out, ph)
	}
	return out
}

// without returns phrases minus the members of drop, preserving order.
func without(phrases []string, drop map[string]struct{}) []string {
	if len(drop) == 0 {
		return phrases
	}
	out := make([]string, 0, len(phrases))
	for _, ph := range phrases {
		if _, ok := drop[ph]; !ok {
			out = append(out, ph)
		}
	}
	return out
}
