// Package app holds the process wiring shared by the service binaries:
// configuration flags, backend connections chosen by the storage settings,
// health checks, the metrics listener and graceful HTTP shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/document"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/badgerdb"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/tracing"
)

// LoadConfig parses --config from args and loads the file it names. An
// empty path runs on defaults plus KK_* overrides.
func LoadConfig(name string, args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.StringP("config", "c", os.Getenv("KK_CONFIG"), "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

// Init configures logging and tracing for the process and registers the
// Prometheus collectors. Metrics are nil when disabled.
func Init(cfg *config.Config, service string) *metrics.Metrics {
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.Configure(cfg.Tracing)
	slog.SetDefault(slog.Default().With("service", service))
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ServeMetrics exposes /metrics on the metrics port until ctx ends.
func ServeMetrics(ctx context.Context, cfg config.MetricsConfig) {
	if !cfg.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Serve runs server until ctx ends, then shuts it down within timeout.
func Serve(ctx context.Context, server *http.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// NewServer builds an HTTP server with the configured timeouts.
func NewServer(port int, handler http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// startupRetry is the backoff used while dependencies come up.
var startupRetry = resilience.RetryConfig{
	MaxAttempts:  6,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
}

// connect runs open under the startup retry policy.
func connect[T any](ctx context.Context, name string, open func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := resilience.Retry(ctx, "connect "+name, startupRetry, func() error {
		v, err := open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return resilience.Permanent(fmt.Errorf("%w: %w", ctx.Err(), err))
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Resources opens backends on first use and closes them together.
type Resources struct {
	cfg *config.Config

	mu       sync.Mutex
	postgres *postgres.Client
	redis    *pkgredis.Client
	badger   *badgerdb.DB
	closers  []func() error
}

func NewResources(cfg *config.Config) *Resources {
	return &Resources{cfg: cfg}
}

// Postgres returns the shared PostgreSQL client.
func (r *Resources) Postgres(ctx context.Context) (*postgres.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.postgres != nil {
		return r.postgres, nil
	}
	db, err := connect(ctx, "postgres", func(ctx context.Context) (*postgres.Client, error) {
		return postgres.New(ctx, r.cfg.Postgres)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	slog.Info("connected to postgres", "host", r.cfg.Postgres.Host, "database", r.cfg.Postgres.Database)
	r.postgres = db
	r.closers = append(r.closers, db.Close)
	return db, nil
}

// Redis returns the shared Redis client.
func (r *Resources) Redis(ctx context.Context) (*pkgredis.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := connect(ctx, "redis", func(ctx context.Context) (*pkgredis.Client, error) {
		return pkgredis.NewClient(ctx, r.cfg.Redis)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.Info("connected to redis", "addr", r.cfg.Redis.Addr)
	r.redis = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}

// Badger returns the shared embedded store. Only one process may open a
// directory at a time.
func (r *Resources) Badger() (*badgerdb.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.badger != nil {
		return r.badger, nil
	}
	db, err := badgerdb.Open(r.cfg.Badger)
	if err != nil {
		return nil, err
	}
	slog.Info("opened badger", "dir", r.cfg.Badger.Dir, "in_memory", r.cfg.Badger.InMemory)
	r.badger = db
	r.closers = append(r.closers, db.Close)
	return db, nil
}

// DocumentStore opens the configured document backend and migrates it.
func (r *Resources) DocumentStore(ctx context.Context) (document.Store, error) {
	switch r.cfg.Storage.Documents {
	case config.BackendPostgres:
		db, err := r.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		store := document.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendBadger:
		db, err := r.Badger()
		if err != nil {
			return nil, err
		}
		return document.NewBadgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown document backend %q", r.cfg.Storage.Documents)
	}
}

// IndexStore opens the configured frequency index backend.
func (r *Resources) IndexStore(ctx context.Context) (wordindex.Store, error) {
	switch r.cfg.Storage.Index {
	case config.BackendRedis:
		client, err := r.Redis(ctx)
		if err != nil {
			return nil, err
		}
		return wordindex.NewRedisStore(client), nil
	case config.BackendBadger:
		db, err := r.Badger()
		if err != nil {
			return nil, err
		}
		return wordindex.NewBadgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", r.cfg.Storage.Index)
	}
}

// RegisterChecks adds a readiness check for every backend opened so far.
// optional lists backends the process can run degraded without.
func (r *Resources) RegisterChecks(checker *health.Checker, optional ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	check := func(name string, ping health.Probe) {
		kind := health.Required
		if slices.Contains(optional, name) {
			kind = health.Optional
		}
		checker.Register(name, kind, ping)
	}
	if r.postgres != nil {
		check(config.BackendPostgres, r.postgres.Ping)
	}
	if r.redis != nil {
		check(config.BackendRedis, r.redis.Ping)
	}
	if r.badger != nil {
		db := r.badger
		check(config.BackendBadger, func(context.Context) error { return db.Ping() })
	}
}

// Close releases every opened backend in reverse order.
func (r *Resources) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Error("closing resource", "error", err)
		}
	}
	r.closers = nil
}

// Fatal logs err and exits.
func Fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
