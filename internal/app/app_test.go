package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/health"
)

func TestLoadConfigReadsFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kokuto.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity:\n  searchLimit: 7\n"), 0o600))

	cfg, err := LoadConfig("test", []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Similarity.SearchLimit)
	assert.Equal(t, 500, cfg.Index.DefaultLimit)

	_, err = LoadConfig("test", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = LoadConfig("test", []string{"--bogus"})
	assert.Error(t, err)
}

func badgerConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Documents = config.BackendBadger
	cfg.Storage.Index = config.BackendBadger
	cfg.Badger.InMemory = true
	return cfg
}

func TestResourcesShareOneBadger(t *testing.T) {
	ctx := context.Background()
	res := NewResources(badgerConfig())
	defer res.Close()

	docs, err := res.DocumentStore(ctx)
	require.NoError(t, err)
	idx, err := res.IndexStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "badger", idx.Name())

	first, err := res.Badger()
	require.NoError(t, err)
	second, err := res.Badger()
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NoError(t, docs.Ping(ctx))

	checker := health.NewChecker()
	res.RegisterChecks(checker)
	report := checker.Run(ctx)
	assert.Equal(t, health.StatusUp, report.Status)
	assert.Contains(t, report.Components, config.BackendBadger)
}

func TestResourcesRejectUnknownBackend(t *testing.T) {
	cfg := badgerConfig()
	cfg.Storage.Documents = "mongo"
	cfg.Storage.Index = "memcached"
	res := NewResources(cfg)
	defer res.Close()

	_, err := res.DocumentStore(context.Background())
	assert.Error(t, err)
	_, err = res.IndexStore(context.Background())
	assert.Error(t, err)
}

func TestConnectGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := connect(ctx, "nothing", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("refused")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	server := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, time.Second) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}
