// Package consumer keeps the searcher's cached scan results in step with the
// tenant's documents by listening to document events.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
)

// Invalidator drops cached results of one tenant.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// HandleMessage returns a Kafka MessageHandler that invalidates the tenant's
// cached scans whenever one of its documents is ingested or deleted.
func HandleMessage(cache Invalidator, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, msg kafka.Message) error {
		eventType := msg.Headers[kafka.HeaderEventType]
		tenantID := string(msg.Key)
		if eventType == "" || tenantID == "" {
			event, err := kafka.DecodeJSON[ingestion.DocumentEvent](msg.Value)
			if err != nil {
				logger.Error("failed to decode document event", "error", err)
				m.EventConsumed("undecodable", err)
				return nil
			}
			eventType, tenantID = event.Type, event.TenantID
		}
		if eventType != ingestion.EventDocumentIngested && eventType != ingestion.EventDocumentDeleted {
			return nil
		}

		err := cache.InvalidateTenant(ctx, tenantID)
		m.EventConsumed(eventType, err)
		if err != nil {
			return fmt.Errorf("invalidating tenant %s: %w", tenantID, err)
		}
		return nil
	}
}
