package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowyourfan-backend/internal/chat"
	"knowyourfan-backend/internal/documents"
	"knowyourfan-backend/internal/shared/config"
	"knowyourfan-backend/internal/shared/metrics"
	"knowyourfan-backend/internal/shared/server/middleware"
	"knowyourfan-backend/internal/shared/server/respond"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupChat    = "CHAT"
	rateGroupVerify  = "VERIFY"
)

// RouterDeps carries the services the HTTP surface delegates to.
type RouterDeps struct {
	Documents   *documents.Service
	Chat        *chat.Service
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env, "/api/v1/health", "/api/v1/metrics"),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: rateGroupDefault,
			GroupFor:     rateGroupFor,
			Limiter:      deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupDefault: {Rate: 10, Burst: 30},
				rateGroupChat:    {Rate: 0.5, Burst: 5},
				rateGroupVerify:  {Rate: 0.2, Burst: 3},
			},
		}),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	registerMeRoutes(api)
	if deps.Documents != nil {
		documents.NewHandler(deps.Documents).RegisterRoutes(api)
	}
	if deps.Chat != nil {
		chat.NewHandler(deps.Chat).RegisterRoutes(api)
	}

	return r
}

// rateGroupFor puts the two gateway-backed routes in their own buckets.
func rateGroupFor(c *gin.Context) string {
	switch c.FullPath() {
	case "/api/v1/chat":
		return rateGroupChat
	case "/api/v1/documents/:type/verify":
		return rateGroupVerify
	default:
		return rateGroupDefault
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
