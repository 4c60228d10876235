// Command gateway starts the API gateway service.
//
// The gateway is the single entry point for external clients. It authenticates
// requests via tenant API keys (SHA-256 validated against PostgreSQL), applies
// per-tenant rate limiting, and proxies requests to the ingestion and search
// services with the tenant in X-Tenant-ID. Admin keys may manage the keys of
// their own tenant.
//
// Usage:
//
//	go run ./cmd/gateway [--config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/app"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
)

func main() {
	cfg, err := app.LoadConfig("gateway", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	m := app.Init(cfg, "gateway")
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"searcher_url", cfg.Gateway.SearcherURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := app.NewResources(cfg)
	defer res.Close()

	db, err := res.Postgres(ctx)
	if err != nil {
		app.Fatal("failed to connect to postgres", err)
	}
	validator := apikey.NewValidator(db)
	if err := validator.Migrate(ctx); err != nil {
		app.Fatal("failed to migrate api keys", err)
	}

	limiter := ratelimit.New(cfg.Gateway.RateLimitWindow)
	defer limiter.Close()

	h, err := gwhandler.New(gwhandler.Config{
		IngestionURL: cfg.Gateway.IngestionURL,
		SearcherURL:  cfg.Gateway.SearcherURL,
	}, validator)
	if err != nil {
		app.Fatal("failed to create gateway handler", err)
	}

	checker := health.NewChecker()
	res.RegisterChecks(checker)

	chain := router.New(h, validator, limiter, checker, cfg.Gateway, m)

	app.ServeMetrics(ctx, cfg.Metrics)
	server := app.NewServer(cfg.Gateway.Port, chain, cfg.Server)
	slog.Info("gateway service listening", "addr", server.Addr)
	if err := app.Serve(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		app.Fatal("server error", err)
	}
	slog.Info("gateway service stopped")
}
