package phrase

// Count is a phrase with the number of times it was produced for one
// document.
type Count struct {
	Phrase string `json:"phrase"`
	Count  int64  `json:"count"`
}

// CountPhrases collapses duplicates, keeping first-seen order.
func CountPhrases(phrases []string) []Count {
	index := make(map[string]int, len(phrases))
	out := make([]Count, 0, len(phrases))
	for _, ph := range phrases {
		if i, ok := index[ph]; ok {
			out[i].Count++
			continue
		}
		index[ph] = len(out)
		out = append(out, Count{Phrase: ph, Count: 1})
	}
	return out
}
