// Package tenant carries the authenticated tenant through a request as an
// explicit context value. Services trust the X-Tenant-ID header because only
// the gateway, after validating an API key, sets it.
package tenant

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
)

const HeaderTenantID = "X-Tenant-ID"

const maxIDLength = 128

type contextKey struct{}

func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext returns the tenant stored by Middleware or WithTenant.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

const reservedChars = ":*?[]\\"

// ValidID reports whether id can be used as a tenant id: 1 to 128 printable
// characters without spaces, the ':' key separator or the Redis glob
// metacharacters * ? [ ] and \.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return strings.ContainsRune(reservedChars, r) || unicode.IsSpace(r) || !unicode.IsPrint(r)
	})
}

// Middleware rejects requests without a valid X-Tenant-ID and stores the
// tenant in the context and in request-scoped log attributes. Paths under
// /health pass through untouched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		id := r.Header.Get(HeaderTenantID)
		if id == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
			return
		}
		if !ValidID(id) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		ctx := WithTenant(r.Context(), id)
		ctx = logger.WithAttrs(ctx, "tenant_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
