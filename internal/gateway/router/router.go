// Package router wires up all API gateway routes and applies the middleware
// chain (RequestID → Logging → CORS → Auth → RateLimit → Metrics).
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/middleware"
)

// New builds the full gateway HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/documents            → ingestion service
//	GET    /api/v1/documents            → ingestion service
//	GET    /api/v1/documents/{id}       → ingestion service
//	DELETE /api/v1/documents/{id}       → ingestion service
//	GET    /api/v1/words                → searcher service
//	GET    /api/v1/words/{word}         → searcher service
//	GET    /api/v1/sections/{section}   → searcher service
//	POST   /api/v1/similar              → searcher service
//	POST   /api/v1/search               → searcher service
//	POST   /api/v1/admin/keys           → create API key   (admin keys)
//	GET    /api/v1/admin/keys           → list API keys    (admin keys)
//	GET    /health/live, /health/ready  → gateway health
//
// Middleware chain (outermost first):
//
//	RequestID → Logging → CORS → Auth → RateLimit → Metrics → mux
func New(
	h *gwhandler.Handler,
	validator gwmw.KeyValidator,
	limiter *ratelimit.Limiter,
	checker *health.Checker,
	cfg config.GatewayConfig,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	checker.Mount(mux)
	h.Register(mux)

	var chain http.Handler = mux
	chain = pkgmw.Metrics(m)(chain)
	chain = gwmw.RateLimit(limiter, cfg.RateLimitWindow, cfg.DefaultRateLimit, m)(chain)
	chain = gwmw.Auth(validator)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	chain = pkgmw.Logging(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
