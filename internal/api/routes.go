package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/middleware"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/ratelimit"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// AuthPathPrefix is the route prefix of the external auth service, guarded by
// its own per-address limiter.
const AuthPathPrefix = "/api/auth"

// RouterConfig holds the cross-cutting settings of the HTTP router.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	AuthLimiter    *ratelimit.Limiter // nil disables the auth limiter
	AuthPolicy     ratelimit.Policy
}

// NewRouter builds the Gin engine with every route of the service.
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	if cfg.AuthLimiter != nil {
		r.Use(middleware.PathRateLimit(cfg.AuthLimiter, AuthPathPrefix, cfg.AuthPolicy))
	}

	r.GET("/health", h.HealthCheck)

	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	premium := middleware.RequirePlan(models.PlanPremium)

	llm := r.Group("/api/llm", auth)
	{
		llm.POST("/generate", h.Generate)
		llm.POST("/generate/openai", premium, h.GenerateWith(models.ProviderOpenAI))
		llm.POST("/generate/claude", premium, h.GenerateWith(models.ProviderClaude))
		llm.POST("/upload-image", h.UploadImage)
		llm.POST("/process-document", h.ProcessDocument)
	}

	users := r.Group("/api/users", auth)
	{
		users.GET("/usage", h.GetUserUsage)
		users.GET("/usage/history", h.GetUsageHistory)
	}

	admin := r.Group("/api/admin", auth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users/:id/usage", h.GetUserUsageByID)
		admin.GET("/llm-statistics", h.GetLLMStatistics)
	}

	return r
}
