// Package service runs the ingestion use cases: it turns text into phrases,
// persists the document, updates the frequency index (inline or through the
// indexer) and publishes document events. It also serves document reads and
// deletes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/document"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/tracing"
)

// Page bounds for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// IndexUpdateError reports a document that was persisted but whose phrases
// did not reach the frequency index. The document is not rolled back.
type IndexUpdateError struct {
	DocumentID string
	Err        error
}

func (e *IndexUpdateError) Error() string {
	return fmt.Sprintf("document %s stored but not indexed: %v", e.DocumentID, e.Err)
}

func (e *IndexUpdateError) Unwrap() error { return e.Err }

type Service struct {
	docs     document.Store
	pipeline *phrase.Pipeline
	index    *wordindex.Index
	events   EventPublisher
	cfg      config.IngestConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Service. events may be nil when no broker is configured;
// async index mode then cannot be used.
func New(docs document.Store, pipeline *phrase.Pipeline, index *wordindex.Index, events EventPublisher, cfg config.IngestConfig, m *metrics.Metrics) (*Service, error) {
	if cfg.IndexMode == config.IndexModeAsync && events == nil {
		return nil, errors.New("async index mode requires an event publisher")
	}
	if cfg.IndexMode == "" {
		cfg.IndexMode = config.IndexModeSync
	}
	return &Service{
		docs:     docs,
		pipeline: pipeline,
		index:    index,
		events:   events,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "ingestion"),
	}, nil
}

// Ingest extracts phrases from req.Text, stores the document and updates the
// frequency index. A request repeating an idempotency key returns the
// original document with StatusDuplicate. When the index update fails the
// returned error is an *IndexUpdateError carrying the stored document id.
func (s *Service) Ingest(ctx context.Context, tenantID string, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := validator.ValidateIngestRequest(req); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "ingest")
	defer func() {
		span.End()
		span.Log(ctx)
	}()
	log := logger.FromContext(ctx)

	if req.IdempotencyKey != "" {
		existing, err := s.docs.FindByIdempotencyKey(ctx, tenantID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			log.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.ID,
			)
			s.metrics.DocumentIngested(ingestion.StatusDuplicate, 0)
			return duplicate(existing), nil
		}
	}

	_, pipeSpan := tracing.StartChildSpan(ctx, "pipeline")
	phrases := s.pipeline.Parse(req.Text)
	counts := phrase.CountPhrases(phrases)
	pipeSpan.SetAttr("phrases", len(phrases))
	pipeSpan.SetAttr("distinct", len(counts))
	pipeSpan.End()

	doc, err := document.New(tenantID, req.Text, req.Sections, req.ExtraData)
	if err != nil {
		return nil, err
	}
	doc.IdempotencyKey = req.IdempotencyKey
	if s.cfg.PersistPhrases {
		doc.Phrases = phrases
	}

	persistCtx, persistSpan := tracing.StartChildSpan(ctx, "persist")
	err = s.docs.Insert(persistCtx, doc)
	persistSpan.End()
	if errors.Is(err, apperrors.ErrConflict) && req.IdempotencyKey != "" {
		// A concurrent request with the same key won the insert.
		existing, findErr := s.docs.FindByIdempotencyKey(ctx, tenantID, req.IdempotencyKey)
		if findErr == nil && existing != nil {
			s.metrics.DocumentIngested(ingestion.StatusDuplicate, 0)
			return duplicate(existing), nil
		}
	}
	if err != nil {
		s.metrics.DocumentIngested("error", 0)
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	span.SetAttr("document_id", doc.ID)

	resp := &ingestion.IngestResponse{DocumentID: doc.ID, Phrases: len(phrases)}
	event := ingestion.DocumentEvent{
		Type:       ingestion.EventDocumentIngested,
		TenantID:   tenantID,
		DocumentID: doc.ID,
		Sections:   doc.Sections,
		OccurredAt: time.Now().UTC(),
	}

	if s.cfg.IndexMode == config.IndexModeAsync {
		event.Counts = counts
		if err := s.publish(ctx, event); err != nil {
			s.metrics.DocumentIngested("index_error", len(counts))
			return nil, &IndexUpdateError{
				DocumentID: doc.ID,
				Err:        fmt.Errorf("%w: queueing index update: %w", apperrors.ErrIndexUpdate, err),
			}
		}
		resp.Status = ingestion.StatusQueued
		s.metrics.DocumentIngested("ok", len(counts))
		log.Info("document ingested", "document_id", doc.ID, "phrases", len(phrases), "status", resp.Status)
		return resp, nil
	}

	indexCtx, indexSpan := tracing.StartChildSpan(ctx, "index")
	err = s.index.IncrDocument(indexCtx, tenantID, doc.Sections, counts)
	indexSpan.End()
	if err != nil {
		s.metrics.DocumentIngested("index_error", len(counts))
		return nil, &IndexUpdateError{DocumentID: doc.ID, Err: err}
	}

	event.Indexed = true
	if err := s.publish(ctx, event); err != nil {
		log.Warn("document event not published", "document_id", doc.ID, "error", err)
	}
	resp.Status = ingestion.StatusIndexed
	s.metrics.DocumentIngested("ok", len(counts))
	log.Info("document ingested", "document_id", doc.ID, "phrases", len(phrases), "status", resp.Status)
	return resp, nil
}

func duplicate(doc *document.Document) *ingestion.IngestResponse {
	return &ingestion.IngestResponse{
		DocumentID: doc.ID,
		Status:     ingestion.StatusDuplicate,
		Phrases:    len(doc.Phrases),
	}
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*document.Document, error) {
	return s.docs.Get(ctx, tenantID, id)
}

// List returns a page of the tenant's documents, newest first. A zero limit
// selects DefaultPageSize; larger limits are capped at MaxPageSize.
func (s *Service) List(ctx context.Context, tenantID string, offset, limit int) ([]*document.Document, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	return s.docs.List(ctx, tenantID, max(offset, 0), limit)
}

// Delete removes the document and returns it. The frequency index keeps the
// counts contributed by the document.
func (s *Service) Delete(ctx context.Context, tenantID, id string) (*document.Document, error) {
	doc, err := s.docs.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Delete(ctx, tenantID, id); err != nil {
		return nil, err
	}
	err = s.publish(ctx, ingestion.DocumentEvent{
		Type:       ingestion.EventDocumentDeleted,
		TenantID:   tenantID,
		DocumentID: id,
		Sections:   doc.Sections,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("document event not published", "document_id", id, "error", err)
	}
	return doc, nil
}

// publish sends event keyed by tenant, so one tenant's events stay ordered.
func (s *Service) publish(ctx context.Context, event ingestion.DocumentEvent) error {
	if s.events == nil {
		return nil
	}
	return s.events.Publish(ctx, kafka.Event{
		Key:   event.TenantID,
		Type:  event.Type,
		Value: event,
	})
}
