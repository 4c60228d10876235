// Package apikey provides SHA-256-based API key validation against PostgreSQL.
// Every key belongs to exactly one tenant. Raw keys are generated with
// crypto/rand, hashed before storage, and validated by comparing the hash of
// the presented key with the stored hash. Keys can be created, revoked, and
// listed per tenant.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/postgres"
)

var (
	ErrInvalidKey = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid api key")
	ErrExpiredKey = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "api key expired")
)

// DefaultRateLimit is applied to keys created without an explicit limit.
const DefaultRateLimit = 100

var schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id         BIGSERIAL PRIMARY KEY,
		key_hash   CHAR(64) NOT NULL UNIQUE,
		tenant_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		rate_limit INTEGER NOT NULL DEFAULT 100,
		is_admin   BOOLEAN NOT NULL DEFAULT false,
		is_active  BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS api_keys_tenant_idx ON api_keys (tenant_id, created_at DESC)`,
}

// KeyInfo holds metadata about a validated API key.
type KeyInfo struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewKey describes a key to create.
type NewKey struct {
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsAdmin   bool       `json:"is_admin"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Validate checks the request fields and fills in the default rate limit.
func (k *NewKey) Validate() error {
	fields := map[string]string{}
	if !tenant.ValidID(k.TenantID) {
		fields["tenant_id"] = "must be 1-128 printable characters without ':'"
	}
	if k.Name == "" {
		fields["name"] = "is required"
	}
	if k.RateLimit < 0 {
		fields["rate_limit"] = "must not be negative"
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(time.Now()) {
		fields["expires_at"] = "must be in the future"
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	if k.RateLimit == 0 {
		k.RateLimit = DefaultRateLimit
	}
	return nil
}

// Validator validates API keys against the api_keys table in PostgreSQL.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewValidator creates a new API key validator backed by PostgreSQL.
func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Migrate creates the api_keys table if it does not exist.
func (v *Validator) Migrate(ctx context.Context) error {
	if err := v.db.Migrate(ctx, schema...); err != nil {
		return apperrors.Storage("migrating api keys", err)
	}
	return nil
}

// Validate checks a raw API key against the database.
// Returns KeyInfo on success, or ErrInvalidKey / ErrExpiredKey on failure.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	row := v.db.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, rate_limit, is_admin, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	info, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, apperrors.Storage("querying api key", err)
	}
	if expired(info, time.Now()) {
		return nil, ErrExpiredKey
	}
	return info, nil
}

// CreateKey generates a new API key, stores its hash, and returns the raw key.
// The raw key is returned only once and cannot be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, req NewKey) (string, *KeyInfo, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}

	var expiry sql.NullTime
	if req.ExpiresAt != nil {
		expiry = sql.NullTime{Time: *req.ExpiresAt, Valid: true}
	}
	row := v.db.DB.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, tenant_id, name, rate_limit, is_admin, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, tenant_id, name, rate_limit, is_admin, is_active, created_at, expires_at`,
		HashKey(rawKey), req.TenantID, req.Name, req.RateLimit, req.IsAdmin, expiry,
	)
	info, err := scanKey(row)
	if err != nil {
		return "", nil, apperrors.Storage("creating api key", err)
	}

	v.logger.Info("api key created",
		"tenant_id", req.TenantID,
		"name", req.Name,
		"rate_limit", req.RateLimit,
		"is_admin", req.IsAdmin,
	)
	return rawKey, info, nil
}

// RevokeKey deactivates an API key so it can no longer be used.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	if err != nil {
		return apperrors.Storage("revoking api key", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}

	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active API keys (without the raw key / hash), newest
// first. An empty tenantID lists the keys of every tenant.
func (v *Validator) ListKeys(ctx context.Context, tenantID string) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, tenant_id, name, rate_limit, is_admin, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE is_active = true AND ($1 = '' OR tenant_id = $1)
		 ORDER BY created_at DESC, id DESC`,
		tenantID,
	)
	if err != nil {
		return nil, apperrors.Storage("listing api keys", err)
	}
	defer rows.Close()

	keys := []KeyInfo{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, apperrors.Storage("scanning api key row", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("listing api keys", err)
	}
	return keys, nil
}

// Ping reports whether the key database is reachable.
func (v *Validator) Ping(ctx context.Context) error {
	return v.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*KeyInfo, error) {
	var k KeyInfo
	var expiresAt sql.NullTime
	if err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.RateLimit, &k.IsAdmin, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

func expired(k *KeyInfo, now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// generateRawKey returns a cryptographically random 32-byte hex-encoded string
// suitable for use as an API key.
func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
