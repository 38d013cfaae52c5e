package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth0      Auth0Config
	Stripe     StripeConfig
	Storage    StorageConfig
	Search     SearchConfig
	Reindex    ReindexConfig
	Email      EmailConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// Auth0Config covers both the API-facing token verification (domain and
// audience) and the machine-to-machine Management API credentials.
type Auth0Config struct {
	Domain           string
	Audience         string
	WebhookSecret    string
	MgmtClientID     string
	MgmtClientSecret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceStandard string
	PricePremium  string
	FrontendURL   string
}

type StorageConfig struct {
	Account   string
	Container string
}

type SearchConfig struct {
	Endpoint string
	APIKey   string
	Indexer  string
}

type ReindexConfig struct {
	Cron               string
	DebounceSeconds    int
	LockMaxHoldSeconds int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// IssuerURL is the Auth0 issuer with the trailing slash tokens carry.
func (a *Auth0Config) IssuerURL() string {
	return "https://" + strings.TrimSuffix(a.Domain, "/") + "/"
}

func (r *ReindexConfig) Debounce() time.Duration {
	return time.Duration(r.DebounceSeconds) * time.Second
}

func (r *ReindexConfig) LockMaxHold() time.Duration {
	return time.Duration(r.LockMaxHoldSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "projectbrain")
	v.SetDefault("DATABASE_PASSWORD", "projectbrain_secret")
	v.SetDefault("DATABASE_NAME", "projectbrain")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("STORAGE_CONTAINER", "resources")
	v.SetDefault("SEARCH_INDEXER", "resources-indexer")
	v.SetDefault("REINDEX_CRON", "* * * * *")
	v.SetDefault("REINDEX_DEBOUNCE_SECONDS", 181)
	v.SetDefault("REINDEX_LOCK_MAX_HOLD_SECONDS", 600)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_FROM", "hello@projectbrain.app")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Auth0: Auth0Config{
			Domain:           v.GetString("AUTH0_DOMAIN"),
			Audience:         v.GetString("AUTH0_AUDIENCE"),
			WebhookSecret:    v.GetString("AUTH0_WEBHOOK_SECRET"),
			MgmtClientID:     v.GetString("AUTH0_MGMT_CLIENT_ID"),
			MgmtClientSecret: v.GetString("AUTH0_MGMT_CLIENT_SECRET"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			PriceStandard: v.GetString("STRIPE_PRICE_STANDARD"),
			PricePremium:  v.GetString("STRIPE_PRICE_PREMIUM"),
			FrontendURL:   v.GetString("STRIPE_FRONTEND_URL"),
		},
		Storage: StorageConfig{
			Account:   v.GetString("STORAGE_ACCOUNT"),
			Container: v.GetString("STORAGE_CONTAINER"),
		},
		Search: SearchConfig{
			Endpoint: v.GetString("SEARCH_ENDPOINT"),
			APIKey:   v.GetString("SEARCH_API_KEY"),
			Indexer:  v.GetString("SEARCH_INDEXER"),
		},
		Reindex: ReindexConfig{
			Cron:               v.GetString("REINDEX_CRON"),
			DebounceSeconds:    v.GetInt("REINDEX_DEBOUNCE_SECONDS"),
			LockMaxHoldSeconds: v.GetInt("REINDEX_LOCK_MAX_HOLD_SECONDS"),
		},
		Email: EmailConfig{
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetInt("SMTP_PORT"),
			SMTPUser:     v.GetString("SMTP_USER"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
			From:         v.GetString("EMAIL_FROM"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}
