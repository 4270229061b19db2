package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/config"
	"github.com/verisafe/account-integrity/internal/transport/http/handlers"
	"github.com/verisafe/account-integrity/internal/transport/http/middleware"
	"github.com/verisafe/account-integrity/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Ledger    *usecase.PointLedgerService
	Crediting *usecase.CreditingService
	Guard     *usecase.LoginGuardService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	Services       ServiceSet
	GatewayClients []port.GatewayClient
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiLimit := buildAPIRateLimit(deps)

	webhooks := r.Group("/webhooks")
	if apiLimit != nil {
		webhooks.Use(apiLimit)
	}
	webhookHandler := handlers.NewWebhookHandler(deps.Services.Crediting, deps.GatewayClients, deps.Logger)
	webhookHandler.RegisterRoutes(webhooks)

	api := r.Group("/api/v1")
	if apiLimit != nil {
		api.Use(apiLimit)
	}
	{
		ledgerHandler := handlers.NewLedgerHandler(deps.Services.Ledger)
		ledgerHandler.RegisterRoutes(api.Group("/ledger"))

		securityHandler := handlers.NewSecurityHandler(deps.Services.Guard)
		securityHandler.RegisterRoutes(api.Group("/security"))
	}

	return r
}

func buildAPIRateLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.Security.APIRateLimit
	window := deps.Config.Security.APIRateWindow
	if limit <= 0 || window <= 0 {
		return nil
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "api",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
