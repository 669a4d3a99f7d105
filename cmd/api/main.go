package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relink-dev/relink/internal/config"
	"github.com/relink-dev/relink/internal/handler"
	"github.com/relink-dev/relink/internal/middleware"
	"github.com/relink-dev/relink/internal/repository"
	"github.com/relink-dev/relink/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	linkRepo := repository.NewLinkRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	billingRepo := repository.NewBillingRepository(db)
	clickRepo := repository.NewClickRepository(db)

	quota := service.NewQuotaEnforcer(billingRepo, logger)
	linkService := service.NewLinkService(linkRepo, cacheRepo, billingRepo, quota, logger)

	clickProcessor := service.NewClickProcessor(clickRepo, linkRepo, billingRepo, logger)
	clickProcessor.Start()
	defer clickProcessor.Stop()

	resolver := service.NewRedirectResolver(cacheRepo, clickProcessor, logger)

	localLimiter := middleware.NewLocalLimiter(middleware.LocalLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	windowLimiter := middleware.NewWindowLimiter(cacheRepo, cfg.RateLimit.Disabled, logger)
	if cfg.RateLimit.Disabled {
		logger.Info("Distributed rate limiting disabled by kill switch")
	}

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	router := handler.NewRouter(
		linkService,
		resolver,
		clickProcessor,
		billingRepo,
		localLimiter,
		windowLimiter,
		apiKeyMiddleware,
		cfg.App.BaseURL,
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
