// Package similarity scans a tenant's corpus for documents close to a query:
// by fingerprint containment, or by overlap between a word list and each
// document's stored phrases. Scans stream documents from the store through a
// bounded worker pool and run under a deadline.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/document"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/fingerprint"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/segmenter"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/resilience"
)

const (
	KindFingerprint = "fingerprint"
	KindWords       = "words"
)

// Match is a document whose fingerprint contains enough of the query's.
type Match struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// WordMatch is a document sharing at least one phrase with the query words.
// Result is the fraction of query words found.
type WordMatch struct {
	DocumentID string   `json:"document_id"`
	Result     float64  `json:"result"`
	WordsFound []string `json:"words_found"`
}

type Scanner struct {
	docs    document.Store
	engine  *fingerprint.Engine
	pool    *ants.Pool
	cache   *ResultCache
	cfg     config.SimilarityConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewScanner starts a worker pool of cfg.Workers goroutines shared by all
// scans. cache may be nil. Close releases the pool.
func NewScanner(docs document.Store, cfg config.SimilarityConfig, cache *ResultCache, m *metrics.Metrics) (*Scanner, error) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating scan pool: %w", err)
	}
	if cfg.SearchLimit < 1 {
		cfg.SearchLimit = 50
	}
	return &Scanner{
		docs:    docs,
		engine:  fingerprint.New(cfg.NGramSize, cfg.WindowSize),
		pool:    pool,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "similarity-scanner"),
	}, nil
}

func (s *Scanner) Close() {
	s.pool.Release()
}

// FindSimilar returns every document of the tenant whose fingerprint scores
// above the configured threshold against the query text's fingerprint. The
// result is not ordered.
func (s *Scanner) FindSimilar(ctx context.Context, tenantID, text string) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidation("text", "is required for similar search")
	}
	matches, hit, err := cached(ctx, s.cache, tenantID, KindFingerprint, []string{text}, func() ([]Match, error) {
		return s.findSimilar(ctx, tenantID, text)
	})
	if hit {
		s.metrics.ObserveScan(KindFingerprint, "cached", 0, 0)
	}
	return matches, err
}

func (s *Scanner) findSimilar(ctx context.Context, tenantID, text string) ([]Match, error) {
	query := s.engine.Fingerprint(text)
	if len(query) == 0 {
		return []Match{}, nil
	}

	var mu sync.Mutex
	matches := make([]Match, 0)
	err := s.run(ctx, KindFingerprint, tenantID, func(doc *document.Document) {
		score := fingerprint.Compare(s.engine.Fingerprint(doc.Text), query)
		if score <= s.cfg.ResultThreshold {
			return
		}
		mu.Lock()
		matches = append(matches, Match{DocumentID: doc.ID, Score: score})
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// SearchByWords scores each document in any of sections (all documents when
// sections is empty) by the share of words present in its phrase list.
// Documents with no word found are left out. At most cfg.SearchLimit matches
// are returned, best first. Query words are normalized like document text;
// repeated words count once per occurrence.
func (s *Scanner) SearchByWords(ctx context.Context, tenantID string, sections, words []string) ([]WordMatch, error) {
	query := make([]string, 0, len(words))
	for _, w := range words {
		if w = segmenter.Normalize(w); w != "" {
			query = append(query, w)
		}
	}
	if len(query) == 0 {
		return []WordMatch{}, nil
	}
	parts := []string{strings.Join(sections, "\x01"), strings.Join(query, "\x01")}
	matches, hit, err := cached(ctx, s.cache, tenantID, KindWords, parts, func() ([]WordMatch, error) {
		return s.searchByWords(ctx, tenantID, sections, query)
	})
	if hit {
		s.metrics.ObserveScan(KindWords, "cached", 0, 0)
	}
	return matches, err
}

func (s *Scanner) searchByWords(ctx context.Context, tenantID string, sections, query []string) ([]WordMatch, error) {
	var mu sync.Mutex
	best := newTopK(s.cfg.SearchLimit)
	err := s.run(ctx, KindWords, tenantID, func(doc *document.Document) {
		if !doc.InAnySection(sections) {
			return
		}
		found := wordsFound(doc.Phrases, query)
		if len(found) == 0 {
			return
		}
		m := WordMatch{
			DocumentID: doc.ID,
			Result:     float64(len(found)) / float64(len(query)),
			WordsFound: found,
		}
		mu.Lock()
		best.Push(m)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return best.Sorted(), nil
}

// wordsFound returns the query words, in query order, present in phrases.
func wordsFound(phrases, query []string) []string {
	if len(phrases) == 0 {
		return nil
	}
	var found []string
	for _, w := range query {
		if slices.Contains(phrases, w) {
			found = append(found, w)
		}
	}
	return found
}

// run streams the tenant's documents into the worker pool, applying score to
// each, and waits for all submitted work. Workers score a document after the
// Scan callback returned, which Store.Scan permits. The whole scan is bounded by
// cfg.ScanTimeout; exceeding it yields ErrScanTimeout and discards partial
// results.
func (s *Scanner) run(ctx context.Context, kind, tenantID string, score func(*document.Document)) error {
	start := time.Now()
	var visited atomic.Int64
	err := resilience.WithTimeout(ctx, s.cfg.ScanTimeout, kind+" scan", func(ctx context.Context) error {
		var wg sync.WaitGroup
		err := s.docs.Scan(ctx, tenantID, func(doc *document.Document) error {
			wg.Add(1)
			if err := s.pool.Submit(func() {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				score(doc)
			}); err != nil {
				wg.Done()
				return fmt.Errorf("submitting scan task: %w", err)
			}
			visited.Add(1)
			return nil
		})
		wg.Wait()
		return err
	})

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
		err = fmt.Errorf("%w: %w", apperrors.ErrScanTimeout, err)
	default:
		result = "error"
	}
	s.metrics.ObserveScan(kind, result, int(visited.Load()), time.Since(start))
	logger.FromContext(ctx).Debug("scan finished",
		"kind", kind,
		"tenant_id", tenantID,
		"result", result,
		"documents", visited.Load(),
		"duration", time.Since(start),
	)
	return err
}
