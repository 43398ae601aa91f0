package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/steelmarket-systems/gsocc/internal/actions"
	"github.com/steelmarket-systems/gsocc/internal/archive"
	"github.com/steelmarket-systems/gsocc/internal/audit"
	"github.com/steelmarket-systems/gsocc/internal/config"
	"github.com/steelmarket-systems/gsocc/internal/handlers"
	"github.com/steelmarket-systems/gsocc/internal/ingestion"
	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/messaging"
	"github.com/steelmarket-systems/gsocc/internal/orchestrator"
	"github.com/steelmarket-systems/gsocc/internal/repository"
	"github.com/steelmarket-systems/gsocc/internal/safelist"
	"github.com/steelmarket-systems/gsocc/internal/server"
	"github.com/steelmarket-systems/gsocc/internal/velocity"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrationsURL := flag.String("migrations", "file://migrations", "migrations source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	// Run database migrations
	logger.Info("running database migrations")
	m, err := migrate.New(*migrationsURL, connString)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database migrations completed")

	repo, err := repository.NewPostgresRepository(context.Background(), connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	safe, err := safelist.Load(cfg.SafeList.File, cfg.SafeList.IPs, cfg.SafeList.UserIDs)
	if err != nil {
		log.Fatalf("Failed to load safe-list: %v", err)
	}

	signer := audit.NewEvidenceSigner(cfg.Audit.Secret)

	var notifier messaging.Notifier
	if cfg.NATS.Enabled {
		natsClient, err := messaging.NewClient(messaging.Config{
			URL:           cfg.NATS.URL,
			Name:          "gsocc-pipeline",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
		notifier = messaging.NewPublisher(natsClient)
	}

	var tracker velocity.Tracker = velocity.NewDatastoreTracker(repo)
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		tracker = velocity.NewRedisTracker(redisClient, cfg.Detection.VelocityWindow)
	}

	var archiver ingestion.Archiver
	if cfg.Archive.Enabled {
		archiveClient, err := archive.NewClient(archive.Config{
			URL:           cfg.Archive.URL,
			Username:      cfg.Archive.Username,
			Password:      cfg.Archive.Password,
			Index:         cfg.Archive.Index,
			TLSSkipVerify: cfg.Archive.Insecure,
		})
		if err != nil {
			log.Fatalf("Failed to create archive client: %v", err)
		}
		if err := archiveClient.Ping(context.Background()); err != nil {
			log.Fatalf("Failed to reach OpenSearch: %v", err)
		}
		archiver = archiveClient
	}

	engine := actions.New(repo, safe, signer, notifier, logger, cfg.Audit.ExecutedBy)

	orch := orchestrator.New(repo, tracker, engine, notifier, logger, orchestrator.Config{
		RiskThreshold:     cfg.Detection.RiskThreshold,
		VelocityThreshold: cfg.Detection.VelocityThreshold,
		VelocityWindow:    cfg.Detection.VelocityWindow,
	})

	ingest := ingestion.New(repo, orch, archiver, logger, cfg.Detection.DatastoreTimeout)

	handler := handlers.NewHandler(ingest, repo, signer, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("GSOCC pipeline listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	// Let in-flight orchestration dispatches finish before closing stores.
	ingest.Wait()
}
