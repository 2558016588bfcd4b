package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/api/handlers"
	"github.com/support-copilot/backend/internal/cache/redis"
	"github.com/support-copilot/backend/internal/evaluation"
	"github.com/support-copilot/backend/internal/helpdesk"
	"github.com/support-copilot/backend/internal/llm"
	"github.com/support-copilot/backend/internal/metrics"
	"github.com/support-copilot/backend/internal/middleware/ratelimit"
	"github.com/support-copilot/backend/internal/middleware/security"
	"github.com/support-copilot/backend/internal/middleware/validation"
	"github.com/support-copilot/backend/internal/retrieval"
	"github.com/support-copilot/backend/internal/storage/sqlite"
	"github.com/support-copilot/backend/pkg/config"
	appLogger "github.com/support-copilot/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Support Copilot quality gate API")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The answer cache is optional; a missing Redis degrades to cold runs.
	var answerCache evaluation.AnswerCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without answer cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			answerCache = redisClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	retriever := retrieval.NewKeywordRetriever(sqliteClient)

	engine := evaluation.NewEngine(
		sqliteClient,
		llmClient,
		retriever,
		answerCache,
		time.Duration(cfg.Evaluation.AnswerCacheTTLMinutes)*time.Minute,
	)

	helpdeskClient := helpdesk.NewClient(
		cfg.Helpdesk.BaseURL,
		cfg.Helpdesk.AccountID,
		cfg.Helpdesk.APIToken,
		cfg.Helpdesk.InboxID,
		cfg.Helpdesk.TimeoutSec,
	)

	hub := handlers.NewHub()

	evaluationHandler := handlers.NewEvaluationHandler(engine, hub)
	escalationHandler := handlers.NewEscalationHandler(helpdeskClient, llmClient, hub)
	webhookHandler := handlers.NewWebhookHandler(cfg.Helpdesk.WebhookSecret, sqliteClient, hub)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Tenant-ID, X-Webhook-Signature",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.Log})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxBodySize: cfg.Server.BodyLimit,
		Logger:      appLogger.Log,
	}))

	api := app.Group("/api/v1")

	api.Post("/evaluations", evaluationHandler.CreateRun)
	api.Post("/evaluations/:id/execute", evaluationHandler.ExecuteRun)
	api.Get("/evaluations/:id", evaluationHandler.GetRun)

	api.Post("/escalations", escalationHandler.HandleEscalation)

	api.Post("/webhooks/helpdesk", webhookHandler.HandleWebhook)

	api.Use("/events/ws", hub.Upgrade)
	api.Get("/events/ws", websocket.New(hub.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "ready",
			"event_clients": hub.ClientCount(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
}
