// Package api wires the HTTP surface of the strategy chat service.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/api/handlers"
	"github.com/kestrelhq/stratagem/internal/database"
	"github.com/kestrelhq/stratagem/internal/middleware"
	"github.com/kestrelhq/stratagem/internal/services"
)

// Dependencies carries everything the routes need. StrategyRepo may be nil
// when Postgres is unavailable; the saved-strategy endpoints then return 503.
type Dependencies struct {
	DB            *database.PostgresDB
	Redis         *database.RedisClient
	Conversations *services.ConversationService
	Strategies    *services.StrategyService
	StrategyRepo  handlers.StrategyReader
	Auth          *middleware.AuthMiddleware
	RateLimiter   *middleware.RateLimiter
	Logger        *zap.Logger
}

// SetupRoutes registers every endpoint on the router: health probes outside
// the versioned group, the pattern catalog and waitlist public, and the chat
// and saved-strategy endpoints behind JWT auth.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)
	chatHandler := handlers.NewChatHandler(deps.Conversations, deps.Strategies, deps.Logger)
	patternsHandler := handlers.NewPatternsHandler(deps.Strategies, deps.Logger)
	strategiesHandler := handlers.NewStrategiesHandler(deps.StrategyRepo, deps.Logger)

	healthGroup := router.Group("/")
	healthGroup.Use(middleware.HealthCheckTelemetryMiddleware())
	{
		healthGroup.GET("/health", healthHandler.HealthCheck)
		healthGroup.HEAD("/health", healthHandler.HealthCheck)
		healthGroup.GET("/ready", healthHandler.ReadinessCheck)
		healthGroup.GET("/live", healthHandler.LivenessCheck)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.TelemetryMiddleware())
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	{
		patterns := v1.Group("/patterns")
		{
			patterns.GET("", patternsHandler.ListPatterns)
			patterns.GET("/:id", patternsHandler.GetPattern)
		}
		v1.POST("/waitlist", patternsHandler.JoinWaitlist)

		chat := v1.Group("/chat", deps.Auth.RequireAuth())
		{
			chat.POST("/sessions", chatHandler.CreateSession)
			chat.GET("/sessions/:id", chatHandler.GetSession)
			chat.DELETE("/sessions/:id", chatHandler.AbandonSession)
			chat.POST("/sessions/:id/messages", chatHandler.PostMessage)
			chat.POST("/sessions/:id/turns", chatHandler.PostTurn)
			chat.PUT("/sessions/:id/rules", chatHandler.UpdateRules)
			chat.POST("/sessions/:id/truncate", chatHandler.Truncate)
			chat.GET("/sessions/:id/validation", chatHandler.GetValidation)
			chat.POST("/sessions/:id/finalize", chatHandler.Finalize)
		}

		strategies := v1.Group("/strategies", deps.Auth.RequireAuth())
		{
			strategies.GET("", strategiesHandler.ListStrategies)
			strategies.GET("/:id", strategiesHandler.GetStrategy)
			strategies.DELETE("/:id", strategiesHandler.DeleteStrategy)
		}
	}
}
