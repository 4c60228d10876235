// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents, derives their
// phrases, persists them and updates the word frequency index, either inline
// or through a document.ingested event consumed by cmd/indexer. Every change
// is published to the document events topic when Kafka is configured.
//
// Usage:
//
//	go run ./cmd/ingestion [--config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/service"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/middleware"
)

func main() {
	cfg, err := app.LoadConfig("ingestion", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	m := app.Init(cfg, "ingestion")
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"documents", cfg.Storage.Documents,
		"index", cfg.Storage.Index,
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

	var events service.EventPublisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		defer producer.Close()
		events = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentEvents)
	}

	svc, err := service.New(docs, pipeline, index, events, cfg.Ingest, m)
	if err != nil {
		app.Fatal("failed to create ingestion service", err)
	}

	checker := health.NewChecker()
	res.RegisterChecks(checker)

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	checker.Mount(mux)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = tenant.Middleware(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Logging(chain)
	chain = middleware.RequestID(chain)

	app.ServeMetrics(ctx, cfg.Metrics)
	server := app.NewServer(cfg.Server.Port, chain, cfg.Server)
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := app.Serve(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		app.Fatal("server error", err)
	}
	slog.Info("ingestion service stopped")
}
