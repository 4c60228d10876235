// Package phrase builds the indexable phrase list of a document: base tokens
// from the segmenter, multi-word phrases merged from adjacent tokens,
// optional relevance filtering and stop-word removal.
package phrase

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

// DefaultRelevanceThreshold is the percentage of a phrase's occurrences a
// containing phrase must reach to subsume it.
const DefaultRelevanceThreshold = 50

// Options configures a Pipeline. The zero value is not valid; start from
// DefaultOptions or OptionsFromConfig.
type Options struct {
	// MaxPhraseLength is the longest phrase, in tokens, the merger builds.
	// 1 disables merging.
	MaxPhraseLength int
	// KeepMergedOnly drops base tokens that ended up inside a merged phrase.
	// Numeric tokens are always kept.
	KeepMergedOnly bool
	// SmartFilter enables the relevance filter.
	SmartFilter bool
	// RelevanceThreshold is a percentage in (0, 100].
	RelevanceThreshold float64
	// StopWords are removed from the result and never merged.
	StopWords []string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Pipeline)
}

func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		MaxPhraseLength:    cfg.MaxPhraseLength,
		KeepMergedOnly:     cfg.KeepMergedOnly,
		SmartFilter:        cfg.SmartFilter,
		RelevanceThreshold: cfg.RelevanceThreshold,
		StopWords:          append([]string(nil), cfg.StopWords...),
	}
}

// Validate reports malformed options as a ValidationError.
func (o Options) Validate() error {
	fields := make(map[string]string)
	if o.MaxPhraseLength < 1 {
		fields["maxPhraseLength"] = fmt.Sprintf("must be at least 1, got %d", o.MaxPhraseLength)
	}
	if o.SmartFilter && (o.RelevanceThreshold <= 0 || o.RelevanceThreshold > 100) {
		fields["relevanceThreshold"] = fmt.Sprintf("must be in (0, 100], got %v", o.RelevanceThreshold)
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}
