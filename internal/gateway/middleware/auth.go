// Package middleware provides HTTP middleware for the API gateway including
// authentication, CORS, and rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
)

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// KeyValidator resolves a raw API key to its metadata.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth returns middleware that validates API keys from the request.
// Keys can be provided via Authorization: Bearer <key>, X-API-Key header,
// or the api_key query parameter. Health endpoints are exempt.
// A client-supplied X-Tenant-ID is discarded; the tenant always comes from
// the key.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(tenant.HeaderTenantID)
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				if code := apperrors.HTTPStatusCode(err); code >= http.StatusInternalServerError {
					logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				}
				httpx.WriteAppError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			ctx = tenant.WithTenant(ctx, info.TenantID)
			ctx = logger.WithAttrs(ctx, "tenant_id", info.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo retrieves the validated KeyInfo from the request context.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

// extractAPIKey reads the API key from the request in priority order:
// Authorization: Bearer header, X-API-Key header, api_key query parameter.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}
