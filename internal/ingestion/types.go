// Package ingestion defines the request/response types and Kafka event schemas
// used by the document ingestion service.
package ingestion

import (
	"encoding/json"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
)

// IngestRequest is the JSON body accepted by POST /api/v1/documents.
type IngestRequest struct {
	Text           string          `json:"text"`
	Sections       []string        `json:"sections"`
	ExtraData      json.RawMessage `json:"extra_data,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Ingest statuses.
const (
	StatusIndexed   = "indexed"
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
)

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Phrases    int    `json:"phrases"`
}

// Event types published on the document events topic.
const (
	EventDocumentIngested = "document.ingested"
	EventDocumentDeleted  = "document.deleted"
)

// DocumentEvent is the Kafka payload for every document change. Counts is
// set only when the ingestion service left the index update to the indexer
// (Indexed is false).
type DocumentEvent struct {
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	DocumentID string         `json:"document_id"`
	Sections   []string       `json:"sections,omitempty"`
	Counts     []phrase.Count `json:"counts,omitempty"`
	Indexed    bool           `json:"indexed"`
	OccurredAt time.Time      `json:"occurred_at"`
}
