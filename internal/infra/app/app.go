package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/config"
	"github.com/verisafe/account-integrity/internal/infra/database"
	"github.com/verisafe/account-integrity/internal/infra/gateway"
	kafkainfra "github.com/verisafe/account-integrity/internal/infra/kafka"
	"github.com/verisafe/account-integrity/internal/infra/logger"
	redisinfra "github.com/verisafe/account-integrity/internal/infra/redis"
	"github.com/verisafe/account-integrity/internal/infra/telemetry"
	postgresrepo "github.com/verisafe/account-integrity/internal/repository/postgres"
	redisrepo "github.com/verisafe/account-integrity/internal/repository/redis"
	"github.com/verisafe/account-integrity/internal/transport/http/middleware"
	"github.com/verisafe/account-integrity/internal/transport/http/routes"
	"github.com/verisafe/account-integrity/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	guard  *usecase.LoginGuardService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer, cfg.Telemetry.MetricsNamespace)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: cfg.Telemetry.MetricsNamespace,
	})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var alertPublisher port.AlertPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			alertPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			alertPublisher = kafkainfra.NewAlertPublisher(producer, cfg.App, log)
			log.Info("kafka alert publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		alertPublisher = kafkainfra.NewStubPublisher(log)
	}

	accountCache := redisrepo.NewAccountCache(redisClient.Client(), cfg.Redis.AccountCachePrefix)
	alertSuppressor := redisrepo.NewAlertSuppressionStore(redisClient.Client(), cfg.Redis.AlertSuppressPrefix)

	rateLimitWindow := cfg.Security.APIRateWindow
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	gatewayClients := []port.GatewayClient{
		gateway.NewPaystackClient(cfg.Gateways.Paystack.BaseURL, cfg.Gateways.Paystack.SecretKey, cfg.Gateways.VerifyTimeout, log),
		gateway.NewFlutterwaveClient(cfg.Gateways.Flutterwave.BaseURL, cfg.Gateways.Flutterwave.SecretKey, cfg.Gateways.VerifyTimeout, log),
	}

	ledgerService := usecase.NewPointLedgerService(repos.Ledger, log).
		WithMetrics(metrics)

	creditingService := usecase.NewCreditingService(repos.Payments, repos.Crediting, repos.Accounts, gatewayClients, alertPublisher, log).
		WithAccountCache(accountCache, cfg.Redis.AccountCacheTTL).
		WithVerifyTimeout(cfg.Gateways.VerifyTimeout).
		WithMetrics(metrics)

	guardService := usecase.NewLoginGuardService(repos.LoginAttempts, alertPublisher, usecase.LoginGuardConfig{
		Threshold:      cfg.Security.LoginThreshold,
		Window:         cfg.Security.LoginWindow,
		BlockDuration:  cfg.Security.BlockDuration,
		Retention:      cfg.Security.AttemptRetention,
		SuppressAlerts: cfg.Security.AlertSuppression,
	}, log).
		WithAlertSuppressor(alertSuppressor).
		WithMetrics(metrics)

	engine := routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    rateLimiter,
		HTTPMetrics:    httpMetrics,
		GatewayClients: gatewayClients,
		Database:       pool,
		Cache:          redisClient,
		Services: routes.ServiceSet{
			Ledger:    ledgerService,
			Crediting: creditingService,
			Guard:     guardService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		guard:  guardService,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	sweepDone := a.startSweeper(ctx)
	defer func() { <-sweepDone }()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting account integrity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// startSweeper deactivates expired login-attempt windows on an interval so
// old rows stop matching the active-window query and the table stays lean.
func (a *Application) startSweeper(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	interval := a.cfg.Security.SweepInterval
	if interval <= 0 || a.guard == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
				removed, err := a.guard.Sweep(sweepCtx)
				cancel()
				if err != nil {
					a.logger.Warn("login attempt sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					a.logger.Info("login attempt sweep completed", zap.Int64("deactivated", removed))
				}
			}
		}
	}()

	return done
}
