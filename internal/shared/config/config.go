package config

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string   `env:"PORT" envDefault:"8080"`
	Env             string   `env:"ENV" envDefault:"dev"`
	CORSAllowOrigin []string `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	DatabaseURL     string   `env:"DATABASE_URL"`
	RedisURL        string   `env:"REDIS_URL"`
	SentryDSN       string   `env:"SENTRY_DSN"`

	ObjectStoreType string `env:"OBJECT_STORE" envDefault:"local"`
	LocalStoreDir   string `env:"LOCAL_STORE_DIR" envDefault:"./data"`
	AWSRegion       string `env:"AWS_REGION"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Prefix        string `env:"S3_PREFIX"`
	SSEKMSKeyID     string `env:"SSE_KMS_KEY_ID"`
	QueueURL        string `env:"QUEUE_URL"`

	JWTSecret          string        `env:"JWT_SECRET"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL"`
	UIRedirectURL      string        `env:"UI_REDIRECT_URL"`
	AdminEmails        []string      `env:"ADMIN_EMAILS" envSeparator:","`

	SignupCredits int `env:"SIGNUP_CREDITS" envDefault:"20"`

	Vendors Vendors
	Polling Polling

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:5173/credits?checkout=success"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:5173/credits?checkout=cancel"`

	ResendAPIKey     string `env:"RESEND_API_KEY"`
	InboxNotifyEmail string `env:"INBOX_NOTIFY_EMAIL"`
	EmailFrom        string `env:"EMAIL_FROM" envDefault:"studio@example.com"`
}

// Vendors holds generation provider credentials and endpoints.
// Base URLs are overridable so tests and staging can point at fakes.
type Vendors struct {
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	OpenAIChatModel  string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	KlingAccessKey   string `env:"KLINGAI_ACCESS_KEY"`
	KlingSecretKey   string `env:"KLINGAI_SECRET_KEY"`
	KlingBaseURL     string `env:"KLINGAI_BASE_URL" envDefault:"https://api-singapore.klingai.com"`
	ArkAPIKey        string `env:"ARK_API_KEY"`
	ArkBaseURL       string `env:"ARK_BASE_URL" envDefault:"https://ark.ap-southeast.bytepluses.com"`
	RunwareAPIKey    string `env:"RUNWARE_API_KEY"`
	RunwareBaseURL   string `env:"RUNWARE_BASE_URL" envDefault:"https://api.runware.ai"`
	DeAPIKey         string `env:"DEAPI_API_KEY"`
	DeAPIBaseURL     string `env:"DEAPI_BASE_URL" envDefault:"https://api.deapi.ai"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsURL    string `env:"ELEVENLABS_BASE_URL" envDefault:"https://api.elevenlabs.io"`
}

// Polling controls async vendor task polling.
type Polling struct {
	Interval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	MaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"120"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		_ = godotenv.Load(path)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("config parse: %v", err)
	}
	return normalize(cfg)
}

func normalize(cfg Config) Config {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.CORSAllowOrigin = trimAll(cfg.CORSAllowOrigin)
	cfg.AdminEmails = lowerAll(trimAll(cfg.AdminEmails))
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 5 * time.Second
	}
	if cfg.Polling.MaxAttempts <= 0 {
		cfg.Polling.MaxAttempts = 120
	}
	if cfg.SignupCredits < 0 {
		cfg.SignupCredits = 0
	}

	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			log.Printf("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			log.Printf("JWT_SECRET is required in production")
		}
	}
	return cfg
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

// IsAdmin reports whether the email belongs to a configured administrator.
func (c Config) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	for i := range values {
		values[i] = strings.ToLower(values[i])
	}
	return values
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
