package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relink-dev/relink/internal/middleware"
	"github.com/relink-dev/relink/internal/repository"
	"github.com/relink-dev/relink/internal/service"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	resolver *service.RedirectResolver,
	clickProcessor service.ClickProcessor,
	billing repository.BillingRepository,
	localLimiter *middleware.LocalLimiter,
	windowLimiter *middleware.WindowLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Request logging
	router.Use(func(c *gin.Context) {
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		)
		c.Next()
	})

	// In-process guard ahead of the distributed limiter
	if localLimiter != nil {
		router.Use(localLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, resolver, clickProcessor, baseURL, logger)
	orgHandler := NewOrgHandler(linkService, billing, logger)

	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)

		// API key protection for mutating endpoints only
		if apiKeyMiddleware != nil {
			api.Use(apiKeyMiddleware)
		}

		api.POST("/links", windowLimiter.Middleware("link-creation", nil), linkHandler.CreateLink)
		api.DELETE("/links/:id", linkHandler.DeleteLink)
		api.POST("/links/migrate", orgHandler.MigrateLinks)
		api.GET("/links/:code/stats", linkHandler.GetStats)
		api.GET("/links/:code/stats/daily", linkHandler.GetDailyStats)
		api.DELETE("/orgs/:id", orgHandler.DeleteOrg)
		api.POST("/billing/:id/counters/reset", orgHandler.ResetCounter)
	}

	// Redirect at the root, behind its own profile, no API key
	router.GET("/:code", windowLimiter.Middleware("redirect", nil), linkHandler.Redirect)

	return router
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "relink",
	})
}
