package apikey

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/postgres"
)

func TestHashKey(t *testing.T) {
	h := HashKey("secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("secret"))
	assert.NotEqual(t, h, HashKey("secret2"))
}

func TestGenerateRawKeyIsUnique(t *testing.T) {
	a, err := generateRawKey()
	require.NoError(t, err)
	b, err := generateRawKey()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestNewKeyValidate(t *testing.T) {
	k := NewKey{TenantID: "acme", Name: "ci"}
	require.NoError(t, k.Validate())
	assert.Equal(t, DefaultRateLimit, k.RateLimit)

	past := time.Now().Add(-time.Hour)
	bad := NewKey{TenantID: "has:colon", RateLimit: -1, ExpiresAt: &past}
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "tenant_id")
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "rate_limit")
	assert.Contains(t, verr.Fields, "expires_at")
}

func TestKeyErrorsAreUnauthorized(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatusCode(ErrInvalidKey))
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatusCode(ErrExpiredKey))
	assert.ErrorIs(t, ErrExpiredKey, apperrors.ErrUnauthorized)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	assert.False(t, expired(&KeyInfo{}, now))
	assert.True(t, expired(&KeyInfo{ExpiresAt: &past}, now))
	assert.False(t, expired(&KeyInfo{ExpiresAt: &future}, now))
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	host := os.Getenv("KK_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("KK_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("postgres not available at %s: %v", host, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	v := NewValidator(db)
	require.NoError(t, v.Migrate(ctx))
	return v
}

func TestValidatorLifecycle(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()
	tenantID := "t-" + uuid.NewString()

	raw, created, err := v.CreateKey(ctx, NewKey{TenantID: tenantID, Name: "ci", RateLimit: 5, IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, tenantID, created.TenantID)

	info, err := v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, tenantID, info.TenantID)
	assert.Equal(t, 5, info.RateLimit)
	assert.True(t, info.IsAdmin)

	keys, err := v.ListKeys(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ci", keys[0].Name)

	require.NoError(t, v.RevokeKey(ctx, raw))
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, v.RevokeKey(ctx, raw), ErrInvalidKey)

	_, err = v.Validate(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
