package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/projectbrain/backend/internal/api/handlers"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/auth"
	"github.com/projectbrain/backend/internal/auth0"
	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/resources"
	"github.com/projectbrain/backend/internal/webhooks"
	"github.com/projectbrain/backend/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB              *gorm.DB
	Redis           *redis.Client
	Logger          *slog.Logger
	Verifier        auth.TokenVerifier
	Encryptor       *crypto.Encryptor
	AsynqClient     *asynq.Client
	ResourceService *resources.Service
	BillingService  *billing.Service
	RoleManager     auth0.RoleManager

	Auth0WebhookSecret  string
	StripeWebhookSecret string

	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	userHandler := handlers.NewUserHandler(cfg.DB)
	conversationHandler := handlers.NewConversationHandler(cfg.DB)
	journalHandler := handlers.NewJournalHandler(cfg.DB, cfg.Encryptor)
	quizHandler := handlers.NewQuizHandler(cfg.DB)
	resourceHandler := handlers.NewResourceHandler(cfg.ResourceService)
	billingHandler := handlers.NewBillingHandler(cfg.DB, cfg.BillingService)
	adminHandler := handlers.NewAdminHandler(cfg.DB, cfg.RoleManager, cfg.BillingService, cfg.Logger)

	auth0Webhook := webhooks.NewAuth0Handler(cfg.DB, cfg.Auth0WebhookSecret, cfg.ResourceService, cfg.AsynqClient, cfg.Logger)
	stripeWebhook := webhooks.NewStripeHandler(cfg.DB, cfg.StripeWebhookSecret, cfg.BillingService, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Vendor webhooks authenticate with their own credentials, never
	// with user tokens.
	r.Post("/webhooks/auth0", auth0Webhook.Handle)
	r.Post("/webhooks/stripe", stripeWebhook.Handle)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Verifier, cfg.DB))

			// User endpoints
			r.Get("/me", userHandler.Me)
			r.Put("/me", userHandler.UpdateMe)
			r.Post("/me/onboarding", userHandler.CompleteOnboarding)
			r.Put("/me/address", userHandler.UpdateAddress)
			r.Get("/me/coach", userHandler.MyCoach)
			r.Get("/coaches", userHandler.ListCoaches)

			// Conversations endpoints
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)
				r.Post("/", conversationHandler.Create)
				r.Get("/{id}", conversationHandler.Get)
				r.Put("/{id}", conversationHandler.Rename)
				r.Delete("/{id}", conversationHandler.Delete)
				r.Get("/{id}/messages", conversationHandler.ListMessages)
				r.Post("/{id}/messages", conversationHandler.AddMessage)
			})

			// Journal endpoints
			r.Route("/journal", func(r chi.Router) {
				r.Get("/", journalHandler.List)
				r.Post("/", journalHandler.Create)
				r.Get("/{id}", journalHandler.Get)
				r.Put("/{id}", journalHandler.Update)
				r.Delete("/{id}", journalHandler.Delete)
			})

			// Quiz endpoints
			r.Route("/quizzes", func(r chi.Router) {
				r.Get("/", quizHandler.List)
				r.Get("/responses", quizHandler.MyResponses)
				r.Get("/{id}", quizHandler.Get)
				r.Post("/{id}/responses", quizHandler.Submit)
			})

			// Resources endpoints
			r.Route("/resources", func(r chi.Router) {
				r.Get("/", resourceHandler.List)
				r.Post("/", resourceHandler.Upload)
				r.Get("/{id}/content", resourceHandler.Download)
				r.Delete("/{id}", resourceHandler.Delete)
			})

			// Billing endpoints
			r.Route("/billing", func(r chi.Router) {
				r.Get("/subscription", billingHandler.GetSubscription)
				r.Post("/checkout", billingHandler.Checkout)
				r.Post("/portal", billingHandler.Portal)
			})

			// Admin endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))

				r.Get("/users", adminHandler.ListUsers)
				r.Put("/users/{id}/roles", adminHandler.SetRoles)
				r.Put("/users/{id}/coach", adminHandler.AssignCoach)
				r.Put("/users/{id}/exclusion", adminHandler.SetExclusion)
			})
		})
	})

	return &Router{r}
}
