package server

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "studio-backend/internal/auth"
	"studio-backend/internal/billing"
	"studio-backend/internal/credits"
	"studio-backend/internal/generations"
	"studio-backend/internal/inbox"
	"studio-backend/internal/prompts"
	"studio-backend/internal/proxy"
	"studio-backend/internal/shared/config"
	"studio-backend/internal/shared/metrics"
	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/storage/db"
	"studio-backend/internal/users"
)

// Rate limit groups.
const (
	GroupDefault  = "DEFAULT"
	GroupPolling  = "POLLING"
	GroupGenerate = "GENERATE"
	GroupPrompts  = "PROMPTS"
	GroupProxy    = "PROXY"
	// GroupWebhook has no rule and is never limited.
	GroupWebhook  = "WEBHOOK"
)

// DefaultRateLimits are per-principal token buckets.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	GroupDefault:  {Rate: 5, Burst: 20},
	GroupPolling:  {Rate: 10, Burst: 30},
	GroupGenerate: {Rate: 0.5, Burst: 5},
	GroupPrompts:  {Rate: 0.5, Burst: 5},
	GroupProxy:    {Rate: 1, Burst: 10},
}

// RouterDeps carries the handlers mounted by NewRouter. Nil handlers are skipped.
type RouterDeps struct {
	Config            config.Config
	DB                *sql.DB
	Limiter           middleware.Limiter
	UserHandler       *users.Handler
	GoogleAuth        *googleauth.GoogleService
	CreditsHandler    *credits.Handler
	GenerationHandler *generations.Handler
	PromptHandler     *prompts.Handler
	InboxHandler      *inbox.Handler
	BillingHandler    *billing.Handler
	ProxyHandler      *proxy.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsDevLike() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(middleware.AuthOptions{
			PublicPrefixes: middleware.DefaultPublicPrefixes,
			IsAdmin:        deps.Config.IsAdmin,
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        DefaultRateLimits,
			DefaultGroup: GroupDefault,
			GroupFor:     RateLimitGroup,
			Limiter:      deps.Limiter,
		}),
	)

	r.GET("/healthz", healthHandler(deps.DB))
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.DB))

	admin := api.Group("/admin", middleware.RequireAdmin())

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(api)
	}
	if deps.CreditsHandler != nil {
		deps.CreditsHandler.RegisterRoutes(api)
		deps.CreditsHandler.RegisterAdminRoutes(admin)
	}
	if deps.GenerationHandler != nil {
		deps.GenerationHandler.RegisterRoutes(api)
	}
	if deps.PromptHandler != nil {
		deps.PromptHandler.RegisterRoutes(api)
	}
	if deps.InboxHandler != nil {
		deps.InboxHandler.RegisterRoutes(api)
		deps.InboxHandler.RegisterAdminRoutes(admin)
	}
	if deps.BillingHandler != nil {
		deps.BillingHandler.RegisterRoutes(api)
		deps.BillingHandler.RegisterWebhook(api)
	}
	if deps.ProxyHandler != nil {
		deps.ProxyHandler.RegisterRoutes(r.Group("/api", middleware.RequireUser()))
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	return r
}

// RateLimitGroup picks the bucket for a request from its matched route.
func RateLimitGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case path == "":
		return GroupDefault
	case c.Request.Method == http.MethodGet && strings.HasPrefix(path, "/api/v1/generations/"):
		return GroupPolling
	case c.Request.Method == http.MethodPost && path == "/api/v1/generations":
		return GroupGenerate
	case path == "/api/v1/prompts/enhance":
		return GroupPrompts
	case path == "/api/v1/billing/webhook":
		return GroupWebhook
	case !strings.HasPrefix(path, "/api/v1/") && strings.HasPrefix(path, "/api/"):
		return GroupProxy
	default:
		return GroupDefault
	}
}

func healthHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, database); err != nil {
			respond.Error(c, http.StatusServiceUnavailable, "unhealthy", "database unreachable", nil)
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
