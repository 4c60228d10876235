// Command standalone runs ingestion and search in one process on an embedded
// Badger store, with document events delivered in-process instead of through
// Kafka. It trusts X-Tenant-ID from the caller, so it belongs behind the
// gateway or on a private network.
//
// Usage:
//
//	go run ./cmd/standalone [--config configs/standalone.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/service"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
	searchhandler "github.com/Adithya-Monish-Kumar-K/kokuto/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/middleware"
)

const defaultDataDir = "./data"

func main() {
	cfg, err := app.LoadConfig("standalone", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Storage.Documents = config.BackendBadger
	cfg.Storage.Index = config.BackendBadger
	if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
		cfg.Badger.Dir = defaultDataDir
	}

	m := app.Init(cfg, "standalone")
	slog.Info("starting standalone service",
		"port", cfg.Server.Port,
		"badger_dir", cfg.Badger.Dir,
		"in_memory", cfg.Badger.InMemory,
		"index_mode", cfg.Ingest.IndexMode,
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

	pipeline, err := phrase.New(phrase.OptionsFromConfig(cfg.Pipeline))
	if err != nil {
		app.Fatal("failed to build phrase pipeline", err)
	}

	events := kafka.NewLoopback()
	if cfg.Ingest.IndexMode == config.IndexModeAsync {
		events.Subscribe(consumer.HandleMessage(index, m))
	}

	svc, err := service.New(docs, pipeline, index, events, cfg.Ingest, m)
	if err != nil {
		app.Fatal("failed to create ingestion service", err)
	}
	scanner, err := similarity.NewScanner(docs, cfg.Similarity, nil, m)
	if err != nil {
		app.Fatal("failed to create scanner", err)
	}
	defer scanner.Close()

	checker := health.NewChecker()
	res.RegisterChecks(checker)

	mux := http.NewServeMux()
	ingesthandler.New(svc).Register(mux)
	searchhandler.New(index, scanner).Register(mux)
	checker.Mount(mux)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = tenant.Middleware(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Logging(chain)
	chain = middleware.RequestID(chain)

	app.ServeMetrics(ctx, cfg.Metrics)
	server := app.NewServer(cfg.Server.Port, chain, cfg.Server)
	slog.Info("standalone service listening", "addr", server.Addr)
	if err := app.Serve(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		app.Fatal("server error", err)
	}
	slog.Info("standalone service stopped")
}
