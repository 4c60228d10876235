package document

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id              UUID PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		text            TEXT NOT NULL,
		sections        TEXT[] NOT NULL DEFAULT '{}',
		phrases         TEXT[],
		extra_data      JSONB,
		content_hash    TEXT NOT NULL,
		idempotency_key TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS documents_tenant_created_idx
		ON documents (tenant_id, created_at DESC, id DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_tenant_idempotency_idx
		ON documents (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
}

const selectColumns = `id, tenant_id, text, sections, phrases, extra_data, content_hash,
	COALESCE(idempotency_key, ''), created_at`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint.
const uniqueViolation = "23505"

// PostgresStore keeps documents in the documents table.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schema...); err != nil {
		return apperrors.Storage("migrating documents", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, doc *Document) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, text, sections, phrases, extra_data, content_hash, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.TenantID, doc.Text, pq.Array(doc.Sections), nullableArray(doc.Phrases),
		nullableJSON(doc.ExtraData), doc.ContentHash, nullableString(doc.IdempotencyKey), doc.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.New(apperrors.ErrConflict, http.StatusConflict, "idempotency key already used by another document")
	}
	return apperrors.Storage("inserting document", err)
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrDocumentNotFound
	}
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, apperrors.Storage("loading document", err)
	}
	return doc, nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*Document, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("querying by idempotency key", err)
	}
	return doc, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, offset, limit int) ([]*Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, apperrors.Storage("listing documents", err)
	}
	defer rows.Close()

	docs := make([]*Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.Storage("scanning document row", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("listing documents", err)
	}
	return docs, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.ErrDocumentNotFound
	}
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return apperrors.Storage("deleting document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("deleting document", err)
	}
	if n == 0 {
		return apperrors.ErrDocumentNotFound
	}
	return nil
}

// Scan streams the tenant's documents row by row off the wire, so the
// corpus is never held in memory at once.
func (s *PostgresStore) Scan(ctx context.Context, tenantID string, fn func(*Document) error) error {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return apperrors.Storage("scanning documents", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return apperrors.Storage("scanning document row", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.Storage("scanning documents", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc   Document
		extra []byte
	)
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.Text, pq.Array(&doc.Sections), pq.Array(&doc.Phrases),
		&extra, &doc.ContentHash, &doc.IdempotencyKey, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		doc.ExtraData = extra
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableArray(values []string) any {
	if values == nil {
		return nil
	}
	return pq.Array(values)
}

var _ Store = (*PostgresStore)(nil)

