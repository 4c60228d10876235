package phrase

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/segmenter"
)

// Pipeline turns raw text into a phrase list. It holds no mutable state and
// is safe for concurrent use.
type Pipeline struct {
	opts      Options
	stopWords map[string]struct{}
	seg       *segmenter.Segmenter
}

// New validates opts and builds a Pipeline using the default segmenter.
func New(opts Options) (*Pipeline, error) {
	return NewWithSegmenter(opts, segmenter.New(language.Und))
}

// NewWithSegmenter is New with an explicit segmenter.
func NewWithSegmenter(opts Options, seg *segmenter.Segmenter) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[w] = struct{}{}
	}
	return &Pipeline{opts: opts, stopWords: stop, seg: seg}, nil
}

// Options returns a copy of the pipeline configuration.
func (p *Pipeline) Options() Options {
	opts := p.opts
	opts.StopWords = append([]string(nil), p.opts.StopWords...)
	return opts
}

// Parse returns the phrases of text in discovery order: base tokens first,
// then merged phrases. Duplicates are kept so callers can count them.
func (p *Pipeline) Parse(text string) []string {
	seg := p.seg.Segment(text)
	phrases := make([]string, 0, len(seg.Tokens)*p.opts.MaxPhraseLength)
	phrases = append(phrases, seg.Tokens...)

	drop := make(map[string]struct{}, len(p.stopWords))
	for w := range p.stopWords {
		drop[w] = struct{}{}
	}

	if p.opts.MaxPhraseLength > 1 {
		merged := Merge(seg.Normalized, p.withoutStopWords(seg.Tokens), p.opts.MaxPhraseLength)
		if p.opts.KeepMergedOnly {
			for tok := range absorbedTokens(merged, seg.Special) {
				drop[tok] = struct{}{}
			}
		}
		phrases = append(phrases, merged...)
	}

	if p.opts.SmartFilter {
		phrases = FilterIrrelevant(seg.Normalized, phrases, p.opts.RelevanceThreshold)
	}
	return without(phrases, drop)
}

func (p *Pipeline) withoutStopWords(tokens []string) []string {
	if len(p.stopWords) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := p.stopWords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// absorbedTokens returns the words that appear inside at least one merged
// phrase, excluding special tokens.
func absorbedTokens(merged, special []string) map[string]struct{} {
	keep := make(map[string]struct{}, len(special))
	for _, s := range special {
		keep[s] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, ph := range merged {
		for _, w := range strings.Split(ph, " ") {
			if _, ok := keep[w]; !ok {
				out[w] = struct{}{}
			}
		}
	}
	return out
}
