package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	dbfiles "resumekit/api/db"
	"resumekit/api/internal/app"
	"resumekit/api/internal/blob"
	"resumekit/api/internal/config"
	"resumekit/api/internal/email"
	"resumekit/api/internal/export"
	"resumekit/api/internal/gitrepo"
	"resumekit/api/internal/importer"
	"resumekit/api/internal/search"
	"resumekit/api/internal/session"
	"resumekit/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	migrations := dbfiles.Migrations()
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		migrations = os.DirFS(cfg.MigrationsDir)
	}
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	opts := []app.Option{
		app.WithHistory(gitrepo.New(cfg.ReposDir)),
	}

	pgfts := search.NewPgFTS(db)
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engine = meiliClient
	}
	searchService := search.NewService(engine, pgfts)
	go searchService.ReindexAllFromPG(ctx, pgfts)
	opts = append(opts, app.WithSearch(searchService))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts = append(opts, app.WithSessionStore(redisStore))
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	var blobs blob.Store = blob.NewMemory()
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		blobs = minioStore
	} else {
		log.Printf("MINIO_ENDPOINT not set, keeping uploads in memory")
	}
	opts = append(opts,
		app.WithImporter(importer.NewService(blobs, log.New(os.Stderr, "[import] ", log.LstdFlags))),
		app.WithExporter(export.NewService(
			export.ChromePDF{ExecPath: cfg.ChromeExecPath, Timeout: 30 * time.Second, Paper: export.ParsePaper(cfg.PDFPaper)},
			export.PandocDOCX{Path: cfg.PandocPath},
		)),
		app.WithMailer(email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})),
	)

	service := app.New(cfg, dataStore, opts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, registry)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Resumekit API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
