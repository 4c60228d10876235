package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DocumentIngested("ok", 3)
		m.IndexUpdate("redis", nil)
		m.ObserveIndexQuery("words", time.Millisecond)
		m.ObserveScan("words", "ok", 10, time.Second)
		m.CacheHit()
		m.CacheMiss()
		m.EventConsumed("document.ingested", nil)
		m.RateLimited()
		m.SetBreakerState("cache", 1)
	})
}

// counterValues gathers reg and returns metric family name -> summed counter
// or gauge value.
func counterValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			out[mf.GetName()] += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
		}
	}
	return out
}

func TestHelpersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IndexUpdate("badger", nil)
	m.IndexUpdate("badger", errors.New("boom"))
	m.IndexUpdate("badger", errors.New("boom"))
	m.ObserveScan("fingerprint", "cached", 0, 0)
	m.ObserveScan("fingerprint", "ok", 42, 20*time.Millisecond)
	m.SetBreakerState("scan-cache", 2)
	m.CacheHit()

	got := counterValues(t, reg)
	assert.Equal(t, 3.0, got["index_updates_total"])
	assert.Equal(t, 2.0, got["similarity_scans_total"])
	assert.Equal(t, 2.0, got["circuit_breaker_state"])
	assert.Equal(t, 1.0, got["cache_hits_total"])
}
