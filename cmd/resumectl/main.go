package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resumekit/api/internal/client"
	"resumekit/api/internal/collection"
	"resumekit/api/internal/config"
	"resumekit/api/internal/export"
	"resumekit/api/internal/plan"
)

func main() {
	cfg := config.LoadClient()
	logger := log.New(os.Stderr, "[resumectl] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	durable, closeDurable := openLocalStorage(cfg, logger)
	defer closeDurable()

	remote := collection.NewRemote(cfg.APIURL,
		collection.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}),
		collection.WithTokenSource(collection.StaticToken(cfg.APIToken)),
	)
	local := collection.NewLocal(collection.NewSafeStorage(durable, logger), collection.WithLocalLogger(logger))
	registry := prometheus.NewRegistry()
	backend := collection.NewFallback(remote, local, logger, collection.NewMetrics(registry))
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	app := client.New(backend, os.Stdout,
		client.WithLogger(logger),
		client.WithMetrics(registry),
		client.WithPlan(plan.Normalize(cfg.Plan)),
		client.WithExporter(export.NewService(export.ChromePDF{Timeout: 30 * time.Second}, export.PandocDOCX{})),
	)
	defer app.Close()

	if err := app.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		logger.Fatalf("resumectl: %v", err)
	}
}

// openLocalStorage opens the configured durable medium. When it cannot be
// opened the session runs on memory only.
func openLocalStorage(cfg config.ClientConfig, logger *log.Logger) (collection.Storage, func()) {
	switch cfg.LocalStore {
	case "memory":
		return collection.NewMemoryStorage(), func() {}
	case "file":
		storage, err := collection.NewFileStorage(cfg.LocalPath)
		if err != nil {
			logger.Printf("local file store unavailable, using memory: %v", err)
			return collection.NewMemoryStorage(), func() {}
		}
		return storage, func() {}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.LocalPath), 0o755); err != nil {
			logger.Printf("local store dir: %v", err)
		}
		storage, err := collection.NewSQLiteStorage(cfg.LocalPath)
		if err != nil {
			logger.Printf("local sqlite store unavailable, using memory: %v", err)
			return collection.NewMemoryStorage(), func() {}
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Printf("close local store: %v", err)
			}
		}
	}
}

// serveMetrics exposes the fallback counters on addr until the returned
// func is called.
func serveMetrics(addr string, registry *prometheus.Registry, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Printf("metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
