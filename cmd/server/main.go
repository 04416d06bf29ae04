package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/ai/llm"
	"github.com/kestrelhq/stratagem/internal/api"
	"github.com/kestrelhq/stratagem/internal/api/handlers"
	"github.com/kestrelhq/stratagem/internal/config"
	"github.com/kestrelhq/stratagem/internal/database"
	"github.com/kestrelhq/stratagem/internal/logging"
	"github.com/kestrelhq/stratagem/internal/middleware"
	"github.com/kestrelhq/stratagem/internal/prompt"
	"github.com/kestrelhq/stratagem/internal/services"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	defer stdLogger.Sync()
	logger := stdLogger.WithService("stratagem-api")

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Environment,
			EnableTracing:    true,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
			Release:          os.Getenv("APP_VERSION"),
		}); err != nil {
			logger.Warn("failed to initialize sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is mandatory: drafts, locks, and rate limit counters live there.
	redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// Postgres is optional: without it the chat loop still works, but
	// finalization and the saved-strategy endpoints return errors.
	var (
		pg            *database.PostgresDB
		strategyRepo  *database.StrategyRepository
		strategyStore services.StrategyStore
		waitlistStore services.WaitlistStore
	)
	pg, err = database.NewPostgresConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("continuing without postgres; strategy persistence disabled", zap.Error(err))
		pg = nil
	} else {
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}
		strategyRepo = database.NewStrategyRepository(pg.Pool)
		strategyStore = strategyRepo
		waitlistStore = database.NewWaitlistRepository(pg.Pool)
	}

	client, err := buildLLMClient(cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	prompts, err := prompt.NewBuilder()
	if err != nil {
		return fmt.Errorf("failed to build prompt templates: %w", err)
	}

	pipeline := strategy.NewPipeline(
		strategy.NewCompletenessEngine(strategy.CompletenessConfig{
			ClarifyThreshold: cfg.Chat.ClarifyThreshold,
		}, stdLogger.WithComponent("completeness")),
		strategy.NewValidator(riskConfig(cfg.Risk), stdLogger.WithComponent("validator")),
	)

	drafts := services.NewDraftStore(
		redisClient,
		time.Duration(cfg.Chat.SessionTTLHours)*time.Hour,
		stdLogger.WithComponent("draft_store"),
	)
	conversations := services.NewConversationService(
		drafts,
		redisClient,
		client,
		prompts,
		strategy.NewExtractor(stdLogger.WithComponent("extractor")),
		pipeline,
		cfg.Chat,
		cfg.AI,
		stdLogger.WithComponent("conversation"),
	)
	strategies := services.NewStrategyService(
		drafts,
		strategyStore,
		waitlistStore,
		pipeline,
		stdLogger.WithComponent("strategy"),
	)

	authMiddleware := middleware.NewAuthMiddleware(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenExpiryHours)*time.Hour,
	)

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limitCfg := middleware.DefaultRateLimitConfig()
		if cfg.RateLimit.RequestsPerMinute > 0 {
			limitCfg.Requests = cfg.RateLimit.RequestsPerMinute
		}
		rateLimiter = middleware.NewRateLimiter(limitCfg, redisClient.Client, stdLogger.WithComponent("ratelimit"))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	var repo handlers.StrategyReader
	if strategyRepo != nil {
		repo = strategyRepo
	}
	api.SetupRoutes(router, api.Dependencies{
		DB:            pg,
		Redis:         redisClient,
		Conversations: conversations,
		Strategies:    strategies,
		StrategyRepo:  repo,
		Auth:          authMiddleware,
		RateLimiter:   rateLimiter,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// riskConfig maps the config-file risk thresholds onto the validator's
// decimal config, keeping the validator's defaults for anything unset.
func riskConfig(cfg config.RiskConfig) strategy.ValidatorConfig {
	out := strategy.DefaultValidatorConfig()
	if cfg.MaxRiskPercent > 0 {
		out.MaxRiskPercent = decimal.NewFromFloat(cfg.MaxRiskPercent)
	}
	if cfg.WarnRiskPercent > 0 {
		out.WarnRiskPercent = decimal.NewFromFloat(cfg.WarnRiskPercent)
	}
	if cfg.MinRiskReward > 0 {
		out.MinRiskReward = decimal.NewFromFloat(cfg.MinRiskReward)
	}
	if cfg.MaxContracts > 0 {
		out.MaxContracts = cfg.MaxContracts
	}
	if cfg.ErrorTradesRemaining > 0 {
		out.ErrorTradesRemaining = cfg.ErrorTradesRemaining
	}
	if cfg.WarnTradesRemaining > 0 {
		out.WarnTradesRemaining = cfg.WarnTradesRemaining
	}
	return out
}

// buildLLMClient configures every provider that has an API key and creates
// the one the config selects.
func buildLLMClient(cfg config.AIConfig) (llm.Client, error) {
	factory := llm.NewClientFactory()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.AnthropicAPIKey != "" {
		factory.Configure(llm.ProviderAnthropic, llm.ClientConfig{
			APIKey:      cfg.AnthropicAPIKey,
			BaseURL:     cfg.AnthropicBaseURL,
			HTTPTimeout: timeout,
		})
	}
	if cfg.OpenAIAPIKey != "" {
		factory.Configure(llm.ProviderOpenAI, llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			HTTPTimeout: timeout,
		})
	}
	return factory.Create(llm.Provider(cfg.Provider))
}
