package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/projectbrain/backend/internal/api"
	"github.com/projectbrain/backend/internal/auth"
	"github.com/projectbrain/backend/internal/auth0"
	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database"
	"github.com/projectbrain/backend/internal/resources"
	"github.com/projectbrain/backend/internal/storage"
	"github.com/projectbrain/backend/pkg/config"
	"github.com/projectbrain/backend/pkg/crypto"
	"github.com/projectbrain/backend/pkg/queue"
	"github.com/projectbrain/backend/pkg/util"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting ProjectBrain server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Initialize Asynq client for background job enqueuing
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
	}

	// Token verification against the Auth0 tenant
	verifier, err := auth.NewVerifier(cfg.Auth0.IssuerURL(), cfg.Auth0.Audience)
	if err != nil {
		logger.Error("failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// Blob storage; an in-memory store keeps local development working
	// without an Azure account.
	var store storage.BlobStore
	if cfg.Storage.Account != "" {
		store, err = storage.NewAzureStore(cfg.Storage.Account, cfg.Storage.Container)
		if err != nil {
			logger.Error("failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("STORAGE_ACCOUNT not set, using in-memory blob store - uploads will be lost on restart")
		store = storage.NewMemoryStore()
	}

	// Encryptor for journal entries
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - journal entries will be unreadable after restart")
	}

	// Initialize services
	resourceService := resources.NewService(db, store, logger)
	billingService := billing.NewService(
		db,
		billing.NewStripeClient(cfg.Stripe.SecretKey),
		cfg.Stripe.PriceStandard,
		cfg.Stripe.PricePremium,
		cfg.Stripe.FrontendURL,
		logger,
	)

	// Auth0 Management API client for role assignment; optional.
	var roleManager auth0.RoleManager
	if cfg.Auth0.MgmtClientID != "" {
		tokens := auth0.NewTokenCache(auth0.NewClientCredentialsSource(
			cfg.Auth0.IssuerURL(), cfg.Auth0.MgmtClientID, cfg.Auth0.MgmtClientSecret,
		))
		roleManager = auth0.NewManagement(cfg.Auth0.IssuerURL(), tokens)
	} else {
		logger.Warn("AUTH0_MGMT_CLIENT_ID not set, role changes will not be mirrored to Auth0")
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:                  db,
		Redis:               redisClient,
		Logger:              logger,
		Verifier:            verifier,
		Encryptor:           encryptor,
		AsynqClient:         asynqClient,
		ResourceService:     resourceService,
		BillingService:      billingService,
		RoleManager:         roleManager,
		Auth0WebhookSecret:  cfg.Auth0.WebhookSecret,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		RateLimitReqs:       cfg.RateLimit.Requests,
		RateLimitSecs:       cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
