package similarity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/resilience"
)

const keyPrefix = "scan:"

// ResultCache stores scan results in Redis for a short TTL. Concurrent
// identical scans collapse into one through singleflight. Redis calls sit
// behind a circuit breaker; while it is open every lookup is a miss and
// results are not written back.
type ResultCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewResultCache(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client: client,
		ttl:    ttl,
		breaker: resilience.NewCircuitBreaker("scan-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "scan-cache"),
	}
}

// cacheKey is scan:<tenant>:<kind>:<digest of the request parts>.
func cacheKey(tenantID, kind string, parts ...string) string {
	sum := blake3.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + tenantID + ":" + kind + ":" + hex.EncodeToString(sum[:16])
}

func (c *ResultCache) get(ctx context.Context, key string, out any) bool {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if data == "" {
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ResultCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// InvalidateTenant drops every cached scan of the tenant.
func (c *ResultCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	deleted, err := c.client.FlushByPattern(ctx, tenantPattern(tenantID))
	if err != nil {
		return fmt.Errorf("invalidating scan cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "tenant_id", tenantID, "keys_deleted", deleted)
	return nil
}

// tenantPattern matches every cached scan of the tenant and nothing else;
// glob metacharacters in the id are escaped.
func tenantPattern(tenantID string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	for _, r := range tenantID {
		if strings.ContainsRune(`*?[]\^-`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString(":*")
	return b.String()
}

// cached returns the cached value for the request or computes, stores and
// returns it. The bool reports a cache hit. A nil cache always computes.
func cached[T any](ctx context.Context, c *ResultCache, tenantID, kind string, parts []string, compute func() (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	key := cacheKey(tenantID, kind, parts...)
	var hit T
	if c.get(ctx, key, &hit) {
		c.metrics.CacheHit()
		return hit, true, nil
	}
	c.metrics.CacheMiss()

	val, err, _ := c.group.Do(key, func() (any, error) {
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}
