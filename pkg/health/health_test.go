package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	type probe struct {
		kind Kind
		fn   Probe
	}
	tests := []struct {
		name   string
		probes map[string]probe
		want   Status
	}{
		{"all up", map[string]probe{"db": {Required, ok}, "cache": {Optional, ok}}, StatusUp},
		{"optional down", map[string]probe{"db": {Required, ok}, "kafka": {Optional, fail}}, StatusDegraded},
		{"required down", map[string]probe{"db": {Required, fail}, "kafka": {Optional, fail}}, StatusDown},
		{"nothing registered", nil, StatusUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, p := range tt.probes {
				c.Register(name, p.kind, p.fn)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.probes))
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	c := NewChecker()
	c.probeTimeout = 10 * time.Millisecond
	c.Register("slow", Required, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["slow"].Message, "deadline")
}

func TestMountedHandlers(t *testing.T) {
	c := NewChecker()
	c.Register("db", Required, fail)
	c.Register("cache", Optional, fail)
	mux := http.NewServeMux()
	c.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "connection refused", report.Components["db"].Message)
	assert.Equal(t, StatusDegraded, report.Components["cache"].Status)
}

func TestReadyWhenOnlyOptionalFails(t *testing.T) {
	c := NewChecker()
	c.Register("cache", Optional, fail)
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
