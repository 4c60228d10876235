package similarity

import "container/heap"

// topK keeps the k best word matches seen so far: highest Result first,
// ties broken by ascending document id.
type topK struct {
	k int
	h matchHeap
}

func newTopK(k int) *topK {
	return &topK{k: k}
}

func (t *topK) Push(m WordMatch) {
	if t.k <= 0 {
		return
	}
	if t.h.Len() < t.k {
		heap.Push(&t.h, m)
		return
	}
	if worse(t.h[0], m) {
		t.h[0] = m
		heap.Fix(&t.h, 0)
	}
}

// Sorted drains the collector, best match first.
func (t *topK) Sorted() []WordMatch {
	out := make([]WordMatch, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(WordMatch)
	}
	return out
}

// worse reports whether a ranks below b.
func worse(a, b WordMatch) bool {
	if a.Result != b.Result {
		return a.Result < b.Result
	}
	return a.DocumentID > b.DocumentID
}

// matchHeap is a min-heap on rank, so the root is the first to evict.
type matchHeap []WordMatch

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) {
	*h = append(*h, x.(WordMatch))
}

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
