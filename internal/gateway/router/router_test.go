package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
)

// fakeKeys stands in for the PostgreSQL validator.
type fakeKeys struct {
	mu   sync.Mutex
	keys map[string]apikey.KeyInfo
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: map[string]apikey.KeyInfo{}}
}

func (f *fakeKeys) add(raw string, info apikey.KeyInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[raw] = info
}

func (f *fakeKeys) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.keys[raw]
	if !ok {
		return nil, apikey.ErrInvalidKey
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(time.Now()) {
		return nil, apikey.ErrExpiredKey
	}
	return &info, nil
}

func (f *fakeKeys) CreateKey(_ context.Context, req apikey.NewKey) (string, *apikey.KeyInfo, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}
	raw := "raw-" + req.Name
	info := apikey.KeyInfo{ID: req.Name, TenantID: req.TenantID, Name: req.Name, RateLimit: req.RateLimit, IsAdmin: req.IsAdmin, IsActive: true}
	f.add(raw, info)
	return raw, &info, nil
}

func (f *fakeKeys) ListKeys(_ context.Context, tenantID string) ([]apikey.KeyInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apikey.KeyInfo
	for _, k := range f.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

// seenRequest is what a backend saw.
type seenRequest struct {
	tenant   string
	auth     string
	apiKey   string
	rawQuery string
	path     string
}

type upstream struct {
	mu   sync.Mutex
	last seenRequest
}

func (u *upstream) seen() seenRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

func (u *upstream) server(t *testing.T, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.last = seenRequest{
			tenant:   r.Header.Get(tenant.HeaderTenantID),
			auth:     r.Header.Get("Authorization"),
			apiKey:   r.Header.Get("X-API-Key"),
			rawQuery: r.URL.RawQuery,
			path:     r.URL.Path,
		}
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type gateway struct {
	srv       *httptest.Server
	keys      *fakeKeys
	ingestion *upstream
	searcher  *upstream
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{keys: newFakeKeys(), ingestion: &upstream{}, searcher: &upstream{}}
	ing := g.ingestion.server(t, http.StatusCreated)
	srch := g.searcher.server(t, http.StatusOK)

	h, err := gwhandler.New(gwhandler.Config{IngestionURL: ing.URL, SearcherURL: srch.URL}, g.keys)
	require.NoError(t, err)

	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)
	cfg := config.GatewayConfig{RateLimitWindow: time.Minute, DefaultRateLimit: 100}

	g.srv = httptest.NewServer(New(h, g.keys, limiter, health.NewChecker(), cfg, nil))
	t.Cleanup(g.srv.Close)

	g.keys.add("user-key", apikey.KeyInfo{ID: "1", TenantID: "acme", Name: "user", RateLimit: 100})
	g.keys.add("admin-key", apikey.KeyInfo{ID: "2", TenantID: "acme", Name: "admin", RateLimit: 100, IsAdmin: true})
	return g
}

func (g *gateway) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, g.srv.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthNeedsNoKey(t *testing.T) {
	g := newGateway(t)
	resp := g.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	g := newGateway(t)
	for _, path := range []string{"/api/v1/documents", "/api/v1/words", "/api/v1/sections/news"} {
		resp := g.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := g.do(t, http.MethodGet, "/api/v1/words", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpiredKeyRejected(t *testing.T) {
	g := newGateway(t)
	past := time.Now().Add(-time.Hour)
	g.keys.add("old-key", apikey.KeyInfo{TenantID: "acme", RateLimit: 10, ExpiresAt: &past})
	resp := g.do(t, http.MethodGet, "/api/v1/words", "old-key", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProxySetsTenantFromKey(t *testing.T) {
	g := newGateway(t)

	req, err := http.NewRequest(http.MethodPost, g.srv.URL+"/api/v1/documents?api_key=user-key&x=1", bytes.NewBufferString(`{"text":"hi"}`))
	require.NoError(t, err)
	req.Header.Set(tenant.HeaderTenantID, "someone-else")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	seen := g.ingestion.seen()
	assert.Equal(t, "acme", seen.tenant)
	assert.Equal(t, "/api/v1/documents", seen.path)
	assert.Equal(t, "x=1", seen.rawQuery)

	resp = g.do(t, http.MethodGet, "/api/v1/words/hello", "user-key", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	seen = g.searcher.seen()
	assert.Equal(t, "acme", seen.tenant)
	assert.Empty(t, seen.apiKey)
	assert.Empty(t, seen.auth)
}

func TestUnknownRouteIsNotProxied(t *testing.T) {
	g := newGateway(t)
	resp := g.do(t, http.MethodGet, "/api/v1/analytics", "user-key", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpstreamDown(t *testing.T) {
	keys := newFakeKeys()
	keys.add("k", apikey.KeyInfo{TenantID: "acme", RateLimit: 10})
	h, err := gwhandler.New(gwhandler.Config{IngestionURL: "http://127.0.0.1:1", SearcherURL: "http://127.0.0.1:1"}, keys)
	require.NoError(t, err)
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)
	srv := httptest.NewServer(New(h, keys, limiter, health.NewChecker(), config.GatewayConfig{RateLimitWindow: time.Minute}, nil))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/words", nil)
	req.Header.Set("X-API-Key", "k")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestNewRejectsBadBackendURL(t *testing.T) {
	_, err := gwhandler.New(gwhandler.Config{IngestionURL: "not a url", SearcherURL: "http://x"}, newFakeKeys())
	assert.Error(t, err)
}

func TestRateLimitingIsPerTenant(t *testing.T) {
	g := newGateway(t)
	g.keys.add("slow-a1", apikey.KeyInfo{TenantID: "slow", RateLimit: 2})
	g.keys.add("slow-a2", apikey.KeyInfo{TenantID: "slow", RateLimit: 2})

	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/api/v1/words", "slow-a1", nil).StatusCode)
	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/api/v1/words", "slow-a2", nil).StatusCode)

	resp := g.do(t, http.MethodGet, "/api/v1/words", "slow-a1", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/api/v1/words", "user-key", nil).StatusCode)
}

func TestAdminKeys(t *testing.T) {
	g := newGateway(t)

	resp := g.do(t, http.MethodPost, "/api/v1/admin/keys", "user-key", map[string]any{"name": "ci"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/api/v1/admin/keys", "admin-key", map[string]any{"name": "ci", "tenant_id": "other"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/api/v1/admin/keys", "admin-key", map[string]any{"name": "ci", "expires_in": "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/api/v1/admin/keys", "admin-key", map[string]any{"name": "ci", "rate_limit": 7, "expires_in": "24h"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		APIKey string         `json:"api_key"`
		Key    apikey.KeyInfo `json:"key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "acme", created.Key.TenantID)
	assert.Equal(t, 7, created.Key.RateLimit)

	resp = g.do(t, http.MethodGet, "/api/v1/words", created.APIKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.do(t, http.MethodGet, "/api/v1/admin/keys", "admin-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, 3, listed.Count)
}

func TestCORSPreflight(t *testing.T) {
	g := newGateway(t)
	req, _ := http.NewRequest(http.MethodOptions, g.srv.URL+"/health/live", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
