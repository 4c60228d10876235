// Package wordindex maintains per-tenant phrase frequency counters, tenant
// wide and per section, and answers ranked top-K queries over them. The
// ranking is kept by the storage layer alongside every increment, so a query
// never loads the full counter set.
package wordindex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
)

// Pagination bounds used when the configuration leaves them unset.
const (
	DefaultLimit = 500
	MaxLimit     = 5000
)

// WordCount is one row of a ranked list.
type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"count"`
}

// Entry is the full counter record of a phrase. A phrase never observed for
// the tenant yields the zero Entry with an empty Sections map.
type Entry struct {
	Global   int64            `json:"global"`
	Sections map[string]int64 `json:"sections"`
}

// Store is the storage contract behind Index. Incr must be atomic per key:
// concurrent increments of the same phrase never lose a count.
type Store interface {
	// Incr adds count to the phrase's global counter and to the counter of
	// each section, registering the phrase in every ranked set it touches.
	Incr(ctx context.Context, tenantID, word string, sections []string, count int64) error
	// Top returns words ordered by count descending. An empty section means
	// the tenant-wide ranking.
	Top(ctx context.Context, tenantID, section string, offset, limit int) ([]WordCount, error)
	Entry(ctx context.Context, tenantID, word string) (Entry, error)
	Name() string
	Ping(ctx context.Context) error
}

// Index validates requests and bounds pagination before delegating to the
// store.
type Index struct {
	store       Store
	cfg         config.IndexConfig
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New builds an Index. concurrency bounds the in-flight increments issued by
// IncrDocument.
func New(store Store, cfg config.IndexConfig, concurrency int, m *metrics.Metrics) *Index {
	if concurrency < 1 {
		concurrency = 1
	}
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = max(MaxLimit, cfg.DefaultLimit)
	}
	return &Index{
		store:       store,
		cfg:         cfg,
		concurrency: concurrency,
		metrics:     m,
		logger:      slog.Default().With("component", "wordindex", "backend", store.Name()),
	}
}

func (x *Index) Ping(ctx context.Context) error {
	return x.store.Ping(ctx)
}

// IncrWord adds count occurrences of word for the tenant.
func (x *Index) IncrWord(ctx context.Context, tenantID, word string, sections []string, count int64) error {
	if strings.TrimSpace(word) == "" {
		return apperrors.NewValidation("word", "must not be empty")
	}
	if count < 0 {
		return apperrors.NewValidation("count", "must not be negative")
	}
	err := x.store.Incr(ctx, tenantID, word, sections, count)
	x.metrics.IndexUpdate(x.store.Name(), err)
	return err
}

// IncrDocument applies the phrase counts of one document. Increments run
// concurrently; the first failure cancels the rest and is reported as
// ErrIndexUpdate. Increments already applied stay applied.
func (x *Index) IncrDocument(ctx context.Context, tenantID string, sections []string, counts []phrase.Count) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for _, c := range counts {
		g.Go(func() error {
			if err := x.IncrWord(gctx, tenantID, c.Phrase, sections, c.Count); err != nil {
				return fmt.Errorf("incrementing %q: %w", c.Phrase, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		x.logger.Error("index update failed", "tenant_id", tenantID, "phrases", len(counts), "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrIndexUpdate, err)
	}
	return nil
}

// GetAppWords returns the tenant's words by global count.
func (x *Index) GetAppWords(ctx context.Context, tenantID string, offset, limit int) ([]WordCount, error) {
	defer x.observe("words", time.Now())
	offset, limit = x.page(offset, limit)
	return x.store.Top(ctx, tenantID, "", offset, limit)
}

// GetAppSectionWords returns the words of one section by section count.
func (x *Index) GetAppSectionWords(ctx context.Context, tenantID, section string, offset, limit int) ([]WordCount, error) {
	if section == "" {
		return nil, apperrors.NewValidation("section", "must not be empty")
	}
	defer x.observe("section", time.Now())
	offset, limit = x.page(offset, limit)
	return x.store.Top(ctx, tenantID, section, offset, limit)
}

func (x *Index) GetAppWord(ctx context.Context, tenantID, word string) (Entry, error) {
	defer x.observe("word", time.Now())
	entry, err := x.store.Entry(ctx, tenantID, word)
	if err != nil {
		return Entry{}, err
	}
	if entry.Sections == nil {
		entry.Sections = map[string]int64{}
	}
	return entry, nil
}

// GetDistinctiveSectionWords returns the section's ranked page with every
// word of the tenant-wide page at the same offset and limit removed.
func (x *Index) GetDistinctiveSectionWords(ctx context.Context, tenantID, section string, offset, limit int) ([]WordCount, error) {
	if section == "" {
		return nil, apperrors.NewValidation("section", "must not be empty")
	}
	defer x.observe("distinctive", time.Now())
	offset, limit = x.page(offset, limit)

	var sectionWords, appWords []WordCount
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sectionWords, err = x.store.Top(gctx, tenantID, section, offset, limit)
		return err
	})
	g.Go(func() error {
		var err error
		appWords, err = x.store.Top(gctx, tenantID, "", offset, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	common := make(map[string]struct{}, len(appWords))
	for _, w := range appWords {
		common[w.Word] = struct{}{}
	}
	out := make([]WordCount, 0, len(sectionWords))
	for _, w := range sectionWords {
		if _, ok := common[w.Word]; !ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (x *Index) page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = x.cfg.DefaultLimit
	}
	if limit > x.cfg.MaxLimit {
		limit = x.cfg.MaxLimit
	}
	return offset, limit
}

func (x *Index) observe(query string, start time.Time) {
	x.metrics.ObserveIndexQuery(query, time.Since(start))
}
