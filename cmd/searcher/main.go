// Command searcher serves the read side: ranked word lists from the
// frequency index, near-duplicate detection and section word search over the
// tenant's documents.
//
// Scan results are cached in Redis when similarity.cacheResults is set, and
// the cache of a tenant is dropped whenever a document event for it arrives.
//
// Usage:
//
//	go run ./cmd/searcher [--config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/app"
	searchconsumer "github.com/Adithya-Monish-Kumar-K/kokuto/internal/searcher/consumer"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/middleware"
)

func main() {
	cfg, err := app.LoadConfig("searcher", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	m := app.Init(cfg, "searcher")
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"documents", cfg.Storage.Documents,
		"index", cfg.Storage.Index,
		"scan_workers", cfg.Similarity.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := app.NewResources(cfg)
	defer res.Close()

	docs, err := res.DocumentStore(ctx)
	if err != nil {
		app.Fatal("failed to open document store", err)
	}
	indexStore, err := res.IndexStore(ctx)
	if err != nil {
		app.Fatal("failed to open index store", err)
	}
	index := wordindex.New(indexStore, cfg.Index, cfg.Ingest.IndexConcurrency, m)

	var cache *similarity.ResultCache
	if cfg.Similarity.CacheResults {
		client, err := res.Redis(ctx)
		if err != nil {
			slog.Warn("redis unavailable, scan caching disabled", "error", err)
		} else {
			cache = similarity.NewResultCache(client, cfg.Redis.CacheTTL, m)
			slog.Info("scan cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	scanner, err := similarity.NewScanner(docs, cfg.Similarity, cache, m)
	if err != nil {
		app.Fatal("failed to create scanner", err)
	}
	defer scanner.Close()

	if cache != nil && cfg.Kafka.Enabled() {
		invalidator := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents, cfg.Kafka.Groups.Searcher,
			searchconsumer.HandleMessage(cache, m))
		defer invalidator.Close()
		go func() {
			if err := invalidator.Start(ctx); err != nil {
				slog.Error("cache invalidation consumer error", "error", err)
			}
		}()
		slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.DocumentEvents)
	}

	checker := health.NewChecker()
	var optional []string
	if cfg.Storage.Index != config.BackendRedis {
		optional = append(optional, config.BackendRedis)
	}
	res.RegisterChecks(checker, optional...)

	mux := http.NewServeMux()
	handler.New(index, scanner).Register(mux)
	checker.Mount(mux)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = tenant.Middleware(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Logging(chain)
	chain = middleware.RequestID(chain)

	app.ServeMetrics(ctx, cfg.Metrics)
	server := app.NewServer(cfg.Server.Port, chain, cfg.Server)
	slog.Info("search service listening", "addr", server.Addr)
	if err := app.Serve(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		app.Fatal("server error", err)
	}
	slog.Info("search service stopped")
}
