package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/internal/alerts"
	"github.com/quantpit/trading-arena/internal/enforcement"
	"github.com/quantpit/trading-arena/internal/history"
	"github.com/quantpit/trading-arena/internal/paymentfraud"
	"github.com/quantpit/trading-arena/internal/suspicion"
	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/config"
	"github.com/quantpit/trading-arena/pkg/database"
	"github.com/quantpit/trading-arena/pkg/logger"
	"github.com/quantpit/trading-arena/pkg/middleware"
	"github.com/quantpit/trading-arena/pkg/redis"
)

func main() {
	cfg, err := config.Load("fraud")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("connected to PostgreSQL")

	// Redis is optional: without it score reads just skip the cache.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, score cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("connected to Redis")
		}
	}

	// Repositories
	suspicionRepo := suspicion.NewRepository(db)
	alertsRepo := alerts.NewRepository(db)
	enforcementRepo := enforcement.NewRepository(db)
	historyRepo := history.NewRepository(db)
	paymentRepo := paymentfraud.NewRepository(db)

	// Services
	cacheTTL := time.Duration(cfg.Fraud.ScoreCacheTTL) * time.Second
	suspicionSvc := suspicion.NewService(suspicionRepo, redisClient, cacheTTL)
	alertsSvc := alerts.NewService(alertsRepo)
	historySvc := history.NewService(historyRepo)
	enforcementSvc := enforcement.NewService(
		enforcementRepo, alertsSvc, historySvc, suspicionRepo, cfg.Fraud.RestrictionDays)
	enforcementSvc.SetScoreProvider(suspicionSvc)
	suspicionSvc.SetEnforcer(enforcementSvc)
	paymentSvc := paymentfraud.NewService(paymentRepo, suspicionSvc, alertsSvc)

	// Handlers
	suspicionHandler := suspicion.NewHandler(suspicionSvc)
	alertsHandler := alerts.NewHandler(alertsSvc)
	enforcementHandler := enforcement.NewHandler(enforcementSvc)
	historyHandler := history.NewHandler(historySvc)
	paymentHandler := paymentfraud.NewHandler(paymentSvc)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics("fraud"))
	router.Use(middleware.SecurityHeaders())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	healthChecks := map[string]func() error{
		"postgres": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		},
	}
	if redisClient != nil {
		healthChecks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(ctx).Err()
		}
	}
	router.GET("/healthz", common.HealthCheck("fraud", "1.0.0"))
	router.GET("/readyz", common.HealthCheckWithDeps("fraud", "1.0.0", healthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		// Detection signals (internal, fed by detection jobs and services)
		signals := api.Group("/signals")
		{
			signals.POST("", suspicionHandler.RecordSignal)
			signals.POST("/device-match", suspicionHandler.RecordDeviceMatch)
			signals.POST("/ip-match", suspicionHandler.RecordIPMatch)
			signals.POST("/coordinated-entry", suspicionHandler.RecordCoordinatedEntry)
			signals.POST("/trading-similarity", suspicionHandler.RecordTradingSimilarity)
			signals.POST("/mirror-trading", suspicionHandler.RecordMirrorTrading)
			signals.POST("/rapid-creation", suspicionHandler.RecordRapidCreation)
			signals.POST("/locale-match", suspicionHandler.RecordLocaleMatch)
			signals.POST("/device-switching", suspicionHandler.RecordDeviceSwitching)
		}

		// Scores
		scores := api.Group("/scores")
		{
			scores.GET("/high-risk", suspicionHandler.GetHighRiskUsers)
			scores.GET("/risk-level/:level", suspicionHandler.GetUsersByRiskLevel)
			scores.GET("/:user_id", suspicionHandler.GetScore)
			scores.GET("/:user_id/history", suspicionHandler.GetScoreHistory)
			scores.POST("/:user_id/reset", suspicionHandler.ResetScore)
		}

		// Alerts
		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.POST("", alertsHandler.CreateAlert)
			alertRoutes.GET("", alertsHandler.ListAlerts)
			alertRoutes.GET("/:id", alertsHandler.GetAlert)
			alertRoutes.PATCH("/:id/status", alertsHandler.UpdateAlertStatus)
		}

		// Enforcement
		api.GET("/policy", enforcementHandler.GetPolicy)
		api.PUT("/policy", enforcementHandler.UpdatePolicy)
		restrictions := api.Group("/restrictions")
		{
			restrictions.GET("", enforcementHandler.ListRestrictions)
			restrictions.POST("", enforcementHandler.CreateRestriction)
			restrictions.POST("/:id/lift", enforcementHandler.LiftRestriction)
		}

		// Payment fingerprints
		payments := api.Group("/payments")
		{
			payments.POST("/track", paymentHandler.TrackFingerprint)
			payments.GET("/shared", paymentHandler.ListSharedInstruments)
		}

		// Per-user views
		users := api.Group("/users/:user_id")
		{
			users.GET("/alerts", alertsHandler.ListUserAlerts)
			users.GET("/restriction", enforcementHandler.GetRestrictionStatus)
			users.POST("/evaluate", enforcementHandler.ReevaluateUser)
			users.GET("/history", historyHandler.GetUserHistory)
			users.GET("/summary", historyHandler.GetUserSummary)
			users.GET("/payments", paymentHandler.GetUserFingerprints)
			users.GET("/payments/shared", paymentHandler.GetSharedStatus)
		}
	}

	addr := ":" + cfg.Server.Port
	logger.Info("fraud service starting", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
