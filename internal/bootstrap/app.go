package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	googleauth "studio-backend/internal/auth"
	"studio-backend/internal/billing"
	"studio-backend/internal/credits"
	"studio-backend/internal/engines"
	"studio-backend/internal/generations"
	"studio-backend/internal/inbox"
	"studio-backend/internal/llm"
	openai "studio-backend/internal/llm/openai"
	"studio-backend/internal/prompts"
	"studio-backend/internal/proxy"
	"studio-backend/internal/queue"
	"studio-backend/internal/shared/config"
	"studio-backend/internal/shared/metrics"
	"studio-backend/internal/shared/server"
	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/storage/cache"
	"studio-backend/internal/shared/storage/db"
	"studio-backend/internal/shared/storage/object"
	localstore "studio-backend/internal/shared/storage/object/local"
	s3store "studio-backend/internal/shared/storage/object/s3"
	"studio-backend/internal/users"
)

// vendorTimeout bounds a single vendor HTTP call, not a whole polled job.
const vendorTimeout = 2 * time.Minute

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Redis       *redis.Client
	Store       object.ObjectStore
	Queue       queue.Client
	Engines     *engines.Registry
	Credits     *credits.Service
	Users       *users.Service
	Generations *generations.Service
	Inbox       *inbox.Service
	Billing     *billing.Service
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Redis:  buildRedis(ctx, cfg),
		Store:  store,
		Queue:  queueClient,
	}

	deps, err := buildServices(app)
	if err != nil {
		return nil, err
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

// Close releases pooled connections. In-process generations are awaited first.
func (a *App) Close() {
	if a.Generations != nil {
		a.Generations.Wait()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("bootstrap: redis unavailable; rate limits are per-process: %v", err)
		return nil
	}
	return client
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.QueueURL)
}

func buildEnhancer(cfg config.Config, client *http.Client) (llm.Enhancer, error) {
	if strings.TrimSpace(cfg.Vendors.OpenAIAPIKey) == "" {
		return llm.PlaceholderClient{}, nil
	}
	return openai.NewClient(cfg.Vendors.OpenAIAPIKey, cfg.Vendors.OpenAIChatModel, cfg.Vendors.OpenAIBaseURL, client)
}

func buildNotifier(cfg config.Config) inbox.Notifier {
	if strings.TrimSpace(cfg.ResendAPIKey) == "" || strings.TrimSpace(cfg.InboxNotifyEmail) == "" {
		return inbox.LogNotifier{}
	}
	return inbox.NewResendNotifier(cfg.ResendAPIKey, cfg.EmailFrom, cfg.InboxNotifyEmail)
}

func buildServices(app *App) (server.RouterDeps, error) {
	cfg := app.Config
	vendorClient := &http.Client{Timeout: vendorTimeout}

	var (
		userRepo       users.Repo
		generationRepo generations.Repo
		inboxRepo      inbox.Repo
		sessionStore   billing.SessionStore
		creditSvc      *credits.Service
	)
	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		generationRepo = &generations.PGRepo{DB: app.DB}
		inboxRepo = &inbox.PGRepo{DB: app.DB}
		sessionStore = &billing.PGStore{DB: app.DB}
		creditSvc = credits.NewPostgresService(credits.NewPGStore(app.DB, cfg.SignupCredits))
	} else {
		userRepo = users.NewMemoryRepo()
		generationRepo = generations.NewMemoryRepo()
		inboxRepo = inbox.NewMemoryRepo()
		sessionStore = billing.NewMemoryStore()
		creditSvc = credits.NewService(cfg.SignupCredits)
	}

	registry := engines.NewRegistryFromConfig(cfg.Vendors, cfg.Polling, vendorClient, func(engine string, attempt int, state string) {
		metrics.IncPollAttempt(engine)
	})

	genSvc := generations.NewService(generationRepo, registry, creditSvc, app.Store)
	genSvc.Queue = app.Queue
	genSvc.HTTPClient = vendorClient

	enhancer, err := buildEnhancer(cfg, vendorClient)
	if err != nil {
		return server.RouterDeps{}, err
	}

	userSvc := users.NewService(userRepo)
	inboxSvc := inbox.NewService(inboxRepo, buildNotifier(cfg))
	billingSvc := billing.NewService(billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	}, sessionStore, creditSvc)

	kling := engines.NewKlingAI(cfg.Vendors.KlingAccessKey, cfg.Vendors.KlingSecretKey, engines.Options{BaseURL: cfg.Vendors.KlingBaseURL})
	// Proxy calls are bounded by the request context only.
	proxyHandler := proxy.NewHandler(proxy.DefaultRoutes(cfg.Vendors, kling), &http.Client{})

	app.Engines = registry
	app.Credits = creditSvc
	app.Users = userSvc
	app.Generations = genSvc
	app.Inbox = inboxSvc
	app.Billing = billingSvc

	var limiter middleware.Limiter
	if app.Redis != nil {
		limiter = middleware.NewRedisLimiter(app.Redis)
	}

	return server.RouterDeps{
		Config:            cfg,
		DB:                app.DB,
		Limiter:           limiter,
		UserHandler:       users.NewHandler(userSvc, creditSvc),
		GoogleAuth:        googleauth.NewGoogleService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.UIRedirectURL, cfg.JWTTTL, userSvc, creditSvc),
		CreditsHandler:    credits.NewHandler(creditSvc),
		GenerationHandler: generations.NewHandler(genSvc),
		PromptHandler:     prompts.NewHandler(enhancer),
		InboxHandler:      inbox.NewHandler(inboxSvc),
		BillingHandler:    billing.NewHandler(billingSvc),
		ProxyHandler:      proxyHandler,
	}, nil
}
