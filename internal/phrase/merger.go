package phrase

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/segmenter"
)

// Merge builds multi-word phrases from runs of adjacent tokens. It keeps a
// window of the maxLen-1 most recent tokens and, for each new token, tries
// every suffix of the window joined with the token, longest first. A
// candidate is accepted when it occurs verbatim in text and does not mix
// numbers with words. Tokens separated by anything other than one space in
// text therefore never merge.
func Merge(text string, tokens []string, maxLen int) []string {
	if maxLen < 2 || len(tokens) < 2 {
		return nil
	}
	var merged []string
	window := make([]string, 0, maxLen)
	var sb strings.Builder
	for _, tok := range tokens {
		for i := range window {
			sb.Reset()
			for _, w := range window[i:] {
				sb.WriteString(w)
				sb.WriteByte(' ')
			}
			sb.WriteString(tok)
			candidate := sb.String()
			if strings.Contains(text, candidate) && !segmenter.IsMixedNumeric(candidate) {
				merged = append(merged, candidate)
			}
		}
		window = append(window, tok)
		if len(window) >= maxLen {
			window = window[1:]
		}
	}
	return merged
}
