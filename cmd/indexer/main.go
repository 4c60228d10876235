// Command indexer applies queued phrase counts to the word frequency index.
// It consumes document.ingested events published by the ingestion service in
// async index mode.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/app"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
)

func main() {
	cfg, err := app.LoadConfig("indexer", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	m := app.Init(cfg, "indexer")
	if !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "indexer requires kafka.brokers")
		os.Exit(1)
	}
	slog.Info("starting indexer service", "index", cfg.Storage.Index)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := app.NewResources(cfg)
	defer res.Close()

	store, err := res.IndexStore(ctx)
	if err != nil {
		app.Fatal("failed to open index store", err)
	}
	index := wordindex.New(store, cfg.Index, cfg.Ingest.IndexConcurrency, m)

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentEvents,
		cfg.Kafka.Groups.Indexer,
		consumer.HandleMessage(index, m),
	)
	defer kafkaConsumer.Close()
	indexConsumer := consumer.New(kafkaConsumer)

	app.ServeMetrics(ctx, cfg.Metrics)
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"group", cfg.Kafka.Groups.Indexer,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	slog.Info("indexer service stopped")
}
