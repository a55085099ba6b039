package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veridianhq/veridian/pkg/api"
	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/billing"
	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/database"
	"github.com/veridianhq/veridian/pkg/lifecycle"
	"github.com/veridianhq/veridian/pkg/metrics"
	"github.com/veridianhq/veridian/pkg/middleware"
	"github.com/veridianhq/veridian/pkg/notify"
	"github.com/veridianhq/veridian/pkg/observability"
	"github.com/veridianhq/veridian/pkg/orgs"
	"github.com/veridianhq/veridian/pkg/policy"
	"github.com/veridianhq/veridian/pkg/scheduler"
)

func main() {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	limitsCfg, err := config.LoadLimitsConfig(cfg.LimitsFile)
	if err != nil {
		logger.WithError(err).Error("failed to load plan limits")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	for _, set := range []struct {
		name       string
		migrations []database.Migration
	}{
		{"orgs", orgs.Migrations()},
		{"audit", audit.Migrations()},
		{"notify", notify.Migrations()},
		{"billing", billing.Migrations()},
	} {
		if err := database.RunMigrations(ctx, db, set.name, set.migrations); err != nil {
			logger.WithError(err).WithField("set", set.name).Error("failed to run migrations")
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	var rateLimiter *middleware.RateLimiter
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		rateLimiter = middleware.NewRateLimiter(redisClient, nil, "veridian:ratelimit")
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	auditLog := audit.NewDBLogger(db)
	defer auditLog.Close()
	notifier := notify.NewDBDispatcher(db)

	store := orgs.NewPostgresStore(db)
	engine := policy.NewEngine(store, limitsCfg, policy.WithDenialRecorder(recorder))
	lifecycleSvc := lifecycle.NewService(store, engine, cfg.Lifecycle,
		lifecycle.WithAuditLogger(auditLog),
		lifecycle.WithMetrics(recorder),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithLogger(logger),
	)
	sweeper := scheduler.NewSweeper(store, lifecycleSvc, cfg.Lifecycle,
		scheduler.WithAuditLogger(auditLog),
		scheduler.WithNotifier(notifier),
		scheduler.WithLogger(logger),
	)
	billingSvc := billing.NewService(db, cfg.Lifecycle.InitialTokenCredit,
		billing.WithAuditLogger(auditLog),
		billing.WithLogger(logger),
	)

	router := api.NewRouter(api.RouterConfig{
		Orgs:           api.NewOrgHandlers(lifecycleSvc, engine, store),
		Admin:          api.NewAdminHandlers(sweeper),
		Billing:        api.NewBillingHandlers(billingSvc),
		Logger:         logger,
		Health:         observability.NewHealthChecker(db, redisClient),
		RateLimiter:    rateLimiter,
		MetricsHandler: recorder.Handler(),
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("starting veridian API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
}
