// Package consumer reads document events from Kafka and applies the queued
// phrase counts to the word frequency index.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
)

// IndexConsumer wraps a Kafka consumer to drive the index updates.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that applies the counts of
// every queued document.ingested event to index. Events the ingestion
// service already indexed, deletions and undecodable payloads are skipped.
// An index failure is returned so the message stays uncommitted.
func HandleMessage(index *wordindex.Index, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		if t, ok := msg.Headers[kafka.HeaderEventType]; ok && t != ingestion.EventDocumentIngested {
			return nil
		}
		event, err := kafka.DecodeJSON[ingestion.DocumentEvent](msg.Value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(msg.Key),
			)
			m.EventConsumed("undecodable", err)
			return nil
		}
		if event.Type != ingestion.EventDocumentIngested || event.Indexed || len(event.Counts) == 0 {
			return nil
		}

		logger.Debug("processing document event",
			"doc_id", event.DocumentID,
			"tenant_id", event.TenantID,
			"phrases", len(event.Counts),
		)
		err = index.IncrDocument(ctx, event.TenantID, event.Sections, event.Counts)
		m.EventConsumed(event.Type, err)
		if err != nil {
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}

		logger.Info("document indexed",
			"doc_id", event.DocumentID,
			"tenant_id", event.TenantID,
		)
		return nil
	}
}
