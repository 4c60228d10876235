// Package handler implements the API gateway endpoints: authenticated
// reverse proxies to the ingestion and searcher services, and tenant API key
// administration.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/apikey"
	gwmw "github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
)

// Config holds the URLs of backend services that the gateway proxies to.
type Config struct {
	IngestionURL string
	SearcherURL  string
}

// KeyManager creates and lists tenant API keys.
type KeyManager interface {
	CreateKey(ctx context.Context, req apikey.NewKey) (string, *apikey.KeyInfo, error)
	ListKeys(ctx context.Context, tenantID string) ([]apikey.KeyInfo, error)
}

// Handler implements the API gateway's HTTP endpoints.
type Handler struct {
	ingestionProxy *httputil.ReverseProxy
	searchProxy    *httputil.ReverseProxy
	keys           KeyManager
}

// New creates a gateway Handler that proxies to the given backend URLs.
func New(cfg Config, keys KeyManager) (*Handler, error) {
	ingestion, err := newProxy(cfg.IngestionURL)
	if err != nil {
		return nil, fmt.Errorf("ingestion backend: %w", err)
	}
	search, err := newProxy(cfg.SearcherURL)
	if err != nil {
		return nil, fmt.Errorf("searcher backend: %w", err)
	}
	return &Handler{
		ingestionProxy: ingestion,
		searchProxy:    search,
		keys:           keys,
	}, nil
}

// newProxy forwards to target with the authenticated tenant in X-Tenant-ID.
// Credentials are not passed on.
func newProxy(target string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", target)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("X-API-Key")
			if q := pr.Out.URL.Query(); q.Has("api_key") {
				q.Del("api_key")
				pr.Out.URL.RawQuery = q.Encode()
			}
			pr.Out.Header.Del(tenant.HeaderTenantID)
			if id, ok := tenant.FromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(tenant.HeaderTenantID, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.FromContext(r.Context()).Error("upstream request failed",
				"upstream", u.Host,
				"path", r.URL.Path,
				"error", err,
			)
			httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}, nil
}

// Register mounts the proxied routes and the admin endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.ProxyIngestion)
	mux.HandleFunc("GET /api/v1/documents", h.ProxyIngestion)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.ProxyIngestion)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.ProxyIngestion)

	mux.HandleFunc("GET /api/v1/words", h.ProxySearch)
	mux.HandleFunc("GET /api/v1/words/{word}", h.ProxySearch)
	mux.HandleFunc("GET /api/v1/sections/{section}", h.ProxySearch)
	mux.HandleFunc("POST /api/v1/similar", h.ProxySearch)
	mux.HandleFunc("POST /api/v1/search", h.ProxySearch)

	mux.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
}

// ProxyIngestion forwards document requests to the ingestion service.
func (h *Handler) ProxyIngestion(w http.ResponseWriter, r *http.Request) {
	h.ingestionProxy.ServeHTTP(w, r)
}

// ProxySearch forwards word and similarity queries to the searcher service.
func (h *Handler) ProxySearch(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

type createKeyRequest struct {
	TenantID  string `json:"tenant_id,omitempty"`
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
	IsAdmin   bool   `json:"is_admin"`
	ExpiresIn string `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
}

// CreateAPIKey creates a key for the caller's tenant and returns the raw key
// (shown once). Only admin keys may call it.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	if req.TenantID != "" && req.TenantID != caller.TenantID {
		httpx.WriteError(w, http.StatusForbidden, "keys can only be created for your own tenant")
		return
	}

	newKey := apikey.NewKey{
		TenantID:  caller.TenantID,
		Name:      req.Name,
		RateLimit: req.RateLimit,
		IsAdmin:   req.IsAdmin,
	}
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			httpx.WriteAppError(w, apperrors.NewValidation("expires_in", "must be a positive duration"))
			return
		}
		t := time.Now().Add(d)
		newKey.ExpiresAt = &t
	}

	raw, info, err := h.keys.CreateKey(r.Context(), newKey)
	if err != nil {
		h.fail(w, r, "failed to create api key", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"api_key": raw,
		"key":     info,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

// ListAPIKeys returns the caller tenant's active API keys (without hashes).
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.ListKeys(r.Context(), caller.TenantID)
	if err != nil {
		h.fail(w, r, "failed to list api keys", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (*apikey.KeyInfo, bool) {
	info := gwmw.GetKeyInfo(r.Context())
	if info == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "missing api key")
		return nil, false
	}
	if !info.IsAdmin {
		httpx.WriteError(w, http.StatusForbidden, "admin key required")
		return nil, false
	}
	return info, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(msg, "error", err)
	}
	httpx.WriteAppError(w, err)
}
