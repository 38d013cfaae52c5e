package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/projectbrain/backend/internal/email"
	"github.com/projectbrain/backend/internal/reindex"
	"github.com/projectbrain/backend/internal/search"
	"github.com/projectbrain/backend/internal/storage"
	"github.com/projectbrain/backend/internal/tasks"
	"github.com/projectbrain/backend/pkg/config"
	"github.com/projectbrain/backend/pkg/queue"
	"github.com/projectbrain/backend/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting ProjectBrain worker")

	// Blob storage holds the reindex lock and watermark blobs, so the
	// worker needs the same store the server writes uploads to.
	var store storage.BlobStore
	if cfg.Storage.Account != "" {
		store, err = storage.NewAzureStore(cfg.Storage.Account, cfg.Storage.Container)
		if err != nil {
			logger.Error("failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("STORAGE_ACCOUNT not set, using in-memory blob store")
		store = storage.NewMemoryStore()
	}

	// Search indexer client
	var indexer search.IndexerClient
	if cfg.Search.Endpoint != "" {
		indexer = search.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey)
	} else {
		logger.Warn("SEARCH_ENDPOINT not set, reindex runs will be skipped")
	}

	runner := reindex.NewRunner(
		store,
		indexer,
		cfg.Search.Indexer,
		cfg.Reindex.Debounce(),
		cfg.Reindex.LockMaxHold(),
		logger,
	)

	// Mailer for welcome emails
	var mailer email.Mailer = email.NoopMailer{}
	if cfg.Email.SMTPHost != "" {
		smtpMailer, err := email.NewSMTPMailer(&cfg.Email)
		if err != nil {
			logger.Error("failed to initialize mailer", "error", err)
			os.Exit(1)
		}
		mailer = smtpMailer
	} else {
		logger.Warn("SMTP_HOST not set, welcome emails will be dropped")
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(runner, mailer, logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Scheduler emits the periodic reindex tick.
	if err := util.ValidateCronExpr(cfg.Reindex.Cron); err != nil {
		logger.Error("invalid REINDEX_CRON expression", "cron", cfg.Reindex.Cron, "error", err)
		os.Exit(1)
	}
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		},
		&asynq.SchedulerOpts{},
	)
	if _, err := scheduler.Register(cfg.Reindex.Cron, tasks.NewReindexTickTask()); err != nil {
		logger.Error("failed to register reindex schedule", "error", err)
		os.Exit(1)
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info("worker stopped")
}
