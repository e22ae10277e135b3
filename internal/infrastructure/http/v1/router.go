// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeart/internal/core/datacontext"
	"codeart/internal/domain/auth"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/http/v1/handlers"
	"codeart/internal/infrastructure/http/v1/middleware"
	"codeart/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	AppName string
	Version string

	// Pool hands out one data context per request session
	Pool *datacontext.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWT issues and validates session tokens; nil disables /auth and
	// bearer sessions
	JWT *auth.JWTService

	Orders *order.Service

	// HealthChecks are probed by /health/ready
	HealthChecks map[string]handlers.Check

	// Info adds backend details to /health/info
	Info func() map[string]any
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.AppName, cfg.Version, cfg.Pool, cfg.HealthChecks, cfg.Info)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	baseHandler := handlers.NewBaseHandler()
	v1 := router.Group("/api/v1")
	{
		var validator middleware.TokenValidator
		if cfg.JWT != nil {
			validator = cfg.JWT
			authHandler := handlers.NewAuthHandler(baseHandler, cfg.JWT)
			v1.POST("/auth/session", authHandler.StartSession)
		}

		// Everything below runs on the session's data context
		sessions := v1.Group("")
		sessions.Use(middleware.Session(cfg.Pool, validator))

		handlers.NewOrderHandler(baseHandler, cfg.Orders).RegisterRoutes(sessions.Group("/orders"))
	}

	return router
}
