// Package document persists tenant documents: their text, section tags,
// derived phrases and opaque extra data. Stores isolate tenants completely;
// a document owned by another tenant is indistinguishable from a missing one.
package document

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Document is one ingested text.
type Document struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Text           string          `json:"text"`
	Sections       []string        `json:"sections"`
	Phrases        []string        `json:"phrases,omitempty"`
	ExtraData      json.RawMessage `json:"extra_data,omitempty"`
	ContentHash    string          `json:"content_hash"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// New builds a document with a fresh time-ordered ID and content hash.
// Duplicate sections are collapsed.
func New(tenantID, text string, sections []string, extra json.RawMessage) (*Document, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating document id: %w", err)
	}
	return &Document{
		ID:          id.String(),
		TenantID:    tenantID,
		Text:        text,
		Sections:    dedupe(sections),
		ExtraData:   extra,
		ContentHash: ContentHash(text),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// ContentHash returns the hex BLAKE3 digest of text.
func ContentHash(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// InAnySection reports whether the document carries at least one of the
// given sections. An empty filter matches every document.
func (d *Document) InAnySection(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range d.Sections {
		if slices.Contains(filter, s) {
			return true
		}
	}
	return false
}

// Store is implemented by PostgresStore and BadgerStore.
type Store interface {
	// Insert persists doc. A reused idempotency key yields ErrConflict.
	Insert(ctx context.Context, doc *Document) error
	// Get returns ErrDocumentNotFound for absent or foreign documents.
	Get(ctx context.Context, tenantID, id string) (*Document, error)
	// FindByIdempotencyKey returns nil, nil when the key is unused.
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*Document, error)
	// List returns documents newest first.
	List(ctx context.Context, tenantID string, offset, limit int) ([]*Document, error)
	// Delete returns ErrDocumentNotFound for absent or foreign documents.
	Delete(ctx context.Context, tenantID, id string) error
	// Scan calls fn for every document of the tenant until fn returns an
	// error or ctx ends. Every call gets a freshly decoded Document that
	// shares no memory with the store, so fn may retain it or hand it to
	// another goroutine.
	Scan(ctx context.Context, tenantID string, fn func(*Document) error) error
	Ping(ctx context.Context) error
	Close() error
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
